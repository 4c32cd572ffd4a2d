package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getHealth(t *testing.T, r *ModuleRegistry) (int, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, status
}

func TestHealthHandler_ReportsModules(t *testing.T) {
	r := newRunningRegistry(t,
		&fakeModule{name: "b", filters: []EventFilter{{Topic0: topicA.Hex()}}},
		&fakeModule{name: "a", filters: []EventFilter{{Topic0: topicB.Hex()}}},
	)

	code, status := getHealth(t, r)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status.Status)
	assert.True(t, status.Running)
	assert.Equal(t, []ModuleInfo{
		{Name: "a", Version: "0.0.1", Status: StatusActive},
		{Name: "b", Version: "0.0.1", Status: StatusActive},
	}, status.Modules)
}

func TestHealthHandler_FailingModuleIsUnhealthy(t *testing.T) {
	m := &fakeModule{name: "failing", filters: []EventFilter{{Topic0: topicA.Hex()}}, err: errors.New("boom")}
	r := newRunningRegistry(t, m)
	require.Error(t, r.ProcessEvent(context.Background(), logEvent(topicA, addrX, 0)))

	code, status := getHealth(t, r)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", status.Status)
	require.Len(t, status.Modules, 1)
	assert.Equal(t, StatusError, status.Modules[0].Status)

	m.err = nil
	require.NoError(t, r.ProcessEvent(context.Background(), logEvent(topicA, addrX, 1)))
	code, _ = getHealth(t, r)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthHandler_StoppedRegistryIsUnhealthy(t *testing.T) {
	r := NewModuleRegistry(zerolog.Nop())
	require.NoError(t, r.RegisterModule(context.Background(), &fakeModule{name: "idle"}))

	code, status := getHealth(t, r)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, status.Running)
}
