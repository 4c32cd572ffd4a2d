package core

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	topicA = common.HexToHash("0xaa")
	topicB = common.HexToHash("0xbb")
	addrX  = common.HexToAddress("0x1000000000000000000000000000000000000001")
)

type fakeModule struct {
	name      string
	filters   []EventFilter
	start     uint64
	addresses []common.Address
	err       error

	initialized bool
	handled     []uint
}

func (f *fakeModule) Name() string    { return f.name }
func (f *fakeModule) Version() string { return "0.0.1" }

func (f *fakeModule) Manifest() *Manifest {
	addr := "0x1000000000000000000000000000000000000001"
	return &Manifest{
		Name:    f.name,
		Version: "0.0.1",
		DataSources: []DataSource{{
			Kind:    "ethereum/contract",
			Name:    "Source",
			Source:  DataSourceSource{Address: &addr, ABI: "Source"},
			Mapping: DataSourceMapping{EventHandlers: []EventHandler{{Event: "A()", Handler: "handleA"}}},
		}},
	}
}

func (f *fakeModule) Initialize(context.Context) error {
	f.initialized = true
	return nil
}

func (f *fakeModule) HandleEvent(_ context.Context, event *Event) error {
	if f.err != nil {
		return f.err
	}
	f.handled = append(f.handled, event.Log.Index)
	return nil
}

func (f *fakeModule) GetEventFilters() []EventFilter { return f.filters }
func (f *fakeModule) GetStartBlock() uint64          { return f.start }

type addressedModule struct {
	*fakeModule
}

func (a addressedModule) Addresses() []common.Address { return a.addresses }

func logEvent(topic common.Hash, addr common.Address, index uint) *Event {
	return &Event{Log: &types.Log{Address: addr, Topics: []common.Hash{topic}, Index: index}}
}

func newRunningRegistry(t *testing.T, modules ...Module) *ModuleRegistry {
	t.Helper()
	r := NewModuleRegistry(zerolog.Nop())
	for _, m := range modules {
		require.NoError(t, r.RegisterModule(context.Background(), m))
	}
	require.NoError(t, r.Start())
	return r
}

func TestRegistry_RoutesByTopicAndAddress(t *testing.T) {
	byTopic := &fakeModule{name: "by-topic", filters: []EventFilter{{Topic0: topicA.Hex()}}}
	byAddress := &fakeModule{name: "by-address", filters: []EventFilter{{Address: addrX.Hex()}}}
	r := newRunningRegistry(t, byTopic, byAddress)

	assert.True(t, byTopic.initialized)

	ctx := context.Background()
	require.NoError(t, r.ProcessEvent(ctx, logEvent(topicA, common.Address{}, 1)))
	require.NoError(t, r.ProcessEvent(ctx, logEvent(topicB, addrX, 2)))
	require.NoError(t, r.ProcessEvent(ctx, logEvent(topicA, addrX, 3)))

	assert.Equal(t, []uint{1, 3}, byTopic.handled)
	assert.Equal(t, []uint{2, 3}, byAddress.handled)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewModuleRegistry(zerolog.Nop())
	require.NoError(t, r.RegisterModule(context.Background(), &fakeModule{name: "dup"}))
	require.Error(t, r.RegisterModule(context.Background(), &fakeModule{name: "dup"}))
}

func TestRegistry_NotRunning(t *testing.T) {
	r := NewModuleRegistry(zerolog.Nop())
	err := r.ProcessEvent(context.Background(), logEvent(topicA, addrX, 0))
	require.Error(t, err)
}

func TestRegistry_SurfacesModuleErrors(t *testing.T) {
	boom := errors.New("boom")
	m := &fakeModule{name: "failing", filters: []EventFilter{{Topic0: topicA.Hex()}}, err: boom}
	r := newRunningRegistry(t, m)

	err := r.ProcessEvent(context.Background(), logEvent(topicA, addrX, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	status, ok := r.Status("failing")
	require.True(t, ok)
	assert.Equal(t, StatusError, status)

	// a successful event clears the error state
	m.err = nil
	require.NoError(t, r.ProcessEvent(context.Background(), logEvent(topicA, addrX, 1)))
	status, _ = r.Status("failing")
	assert.Equal(t, StatusActive, status)
}

func TestRegistry_TopicsAndStartBlock(t *testing.T) {
	r := newRunningRegistry(t,
		&fakeModule{name: "a", start: 500, filters: []EventFilter{{Topic0: topicB.Hex()}}},
		&fakeModule{name: "b", start: 100, filters: []EventFilter{{Topic0: topicA.Hex()}, {Topic0: topicB.Hex()}}},
	)

	assert.Equal(t, []common.Hash{topicA, topicB}, r.Topics())
	assert.Equal(t, uint64(100), r.StartBlock())
	assert.Equal(t, []string{"a", "b"}, r.ListModules())
}

func TestRegistry_Addresses(t *testing.T) {
	other := common.HexToAddress("0x2000000000000000000000000000000000000002")
	m := addressedModule{&fakeModule{name: "factory", addresses: []common.Address{other, addrX, other}}}
	r := newRunningRegistry(t, m)

	addrs, ok := r.Addresses()
	require.True(t, ok)
	assert.Equal(t, []common.Address{addrX, other}, addrs)

	r2 := newRunningRegistry(t, m, &fakeModule{name: "topic-only"})
	_, ok = r2.Addresses()
	assert.False(t, ok)
}
