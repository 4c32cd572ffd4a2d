package core

import (
	"encoding/json"
	"net/http"
	"time"
)

// ModuleInfo describes a registered module
type ModuleInfo struct {
	Name    string       `json:"name"`
	Version string       `json:"version"`
	Status  ModuleStatus `json:"status"`
}

type HealthStatus struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Running   bool         `json:"running"`
	Modules   []ModuleInfo `json:"modules"`
}

// Modules lists every registered module with its status, sorted by name
func (r *ModuleRegistry) Modules() []ModuleInfo {
	names := r.ListModules()
	infos := make([]ModuleInfo, 0, len(names))
	for _, name := range names {
		module, ok := r.GetModule(name)
		if !ok {
			continue
		}
		status, _ := r.Status(name)
		infos = append(infos, ModuleInfo{Name: name, Version: module.Version(), Status: status})
	}
	return infos
}

// Health reports the registry as unhealthy while it is stopped or while any
// module failed its last event
func (r *ModuleRegistry) Health() HealthStatus {
	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Running:   running,
		Modules:   r.Modules(),
	}
	if !running {
		status.Status = "unhealthy"
	}
	for _, m := range status.Modules {
		if m.Status == StatusError {
			status.Status = "unhealthy"
		}
	}
	return status
}

// HealthHandler serves Health as JSON, with 503 when unhealthy
func (r *ModuleRegistry) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := r.Health()

		httpStatus := http.StatusOK
		if status.Status != "healthy" {
			httpStatus = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		_ = json.NewEncoder(w).Encode(status)
	})
}
