package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// ModuleRegistry manages the lifecycle of indexer modules and routes logs to them
type ModuleRegistry struct {
	modules map[string]Module
	status  map[string]ModuleStatus
	logger  zerolog.Logger

	// Event routing
	eventFilters   map[string][]string // topic -> module names
	addressFilters map[string][]string // address -> module names

	mu      sync.RWMutex
	running bool
}

// NewModuleRegistry creates a new module registry
func NewModuleRegistry(logger zerolog.Logger) *ModuleRegistry {
	return &ModuleRegistry{
		modules:        make(map[string]Module),
		status:         make(map[string]ModuleStatus),
		logger:         logger.With().Str("component", "module_registry").Logger(),
		eventFilters:   make(map[string][]string),
		addressFilters: make(map[string][]string),
	}
}

// RegisterModule validates, initializes and registers a module
func (r *ModuleRegistry) RegisterModule(ctx context.Context, module Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := module.Name()

	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("module %s is already registered", name)
	}

	manifest := module.Manifest()
	if manifest == nil {
		return fmt.Errorf("module %s has no manifest", name)
	}

	if err := manifest.ValidateManifest(); err != nil {
		return fmt.Errorf("module %s has invalid manifest: %w", name, err)
	}

	if err := module.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize module %s: %w", name, err)
	}

	filters := module.GetEventFilters()
	for _, filter := range filters {
		if filter.Topic0 != "" {
			lowerTopic := strings.ToLower(filter.Topic0)
			r.eventFilters[lowerTopic] = append(r.eventFilters[lowerTopic], name)
			r.logger.Debug().
				Str("module", name).
				Str("topic0", lowerTopic).
				Msg("Registered topic filter")
		}
		if filter.Address != "" {
			lowerAddr := strings.ToLower(filter.Address)
			r.addressFilters[lowerAddr] = append(r.addressFilters[lowerAddr], name)
			r.logger.Debug().
				Str("module", name).
				Str("address", lowerAddr).
				Msg("Registered address filter")
		}
	}

	r.modules[name] = module
	r.status[name] = StatusActive

	r.logger.Info().
		Str("module", name).
		Str("version", module.Version()).
		Int("filters", len(filters)).
		Msg("Module registered successfully")

	return nil
}

// ProcessEvent routes an event to every interested module. The first module
// error stops routing and is returned to the caller.
func (r *ModuleRegistry) ProcessEvent(ctx context.Context, event *Event) error {
	r.mu.RLock()
	if !r.running {
		r.mu.RUnlock()
		return fmt.Errorf("module registry is not running")
	}
	interested := r.findInterestedModules(event)
	r.mu.RUnlock()

	if len(interested) == 0 {
		return nil
	}

	for _, name := range interested {
		r.mu.RLock()
		module := r.modules[name]
		status := r.status[name]
		r.mu.RUnlock()

		if err := module.HandleEvent(ctx, event); err != nil {
			r.setStatus(name, StatusError)
			r.logger.Error().
				Err(err).
				Str("module", name).
				Uint64("block", event.Log.BlockNumber).
				Str("tx_hash", event.Log.TxHash.Hex()).
				Uint("log_index", event.Log.Index).
				Msg("Module failed to process event")
			return fmt.Errorf("module %s: %w", name, err)
		}

		if status == StatusError {
			r.setStatus(name, StatusActive)
		}
	}

	return nil
}

// findInterestedModules finds modules that should process this event
func (r *ModuleRegistry) findInterestedModules(event *Event) []string {
	var interested []string
	seen := make(map[string]bool)

	add := func(names []string) {
		for _, name := range names {
			if !seen[name] {
				interested = append(interested, name)
				seen[name] = true
			}
		}
	}

	if len(event.Log.Topics) > 0 {
		add(r.eventFilters[strings.ToLower(event.Log.Topics[0].Hex())])
	}
	add(r.addressFilters[strings.ToLower(event.Log.Address.Hex())])

	return interested
}

// Topics returns every topic0 any module subscribed to, sorted
func (r *ModuleRegistry) Topics() []common.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]common.Hash, 0, len(r.eventFilters))
	for topic := range r.eventFilters {
		topics = append(topics, common.HexToHash(topic))
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Hex() < topics[j].Hex() })
	return topics
}

// Addresses returns the contract addresses to filter logs by. It reports
// false when any module subscribes by topic without exposing its addresses,
// in which case the caller must fetch by topic only.
func (r *ModuleRegistry) Addresses() ([]common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[common.Address]struct{})
	for _, m := range r.modules {
		src, ok := m.(AddressSource)
		if !ok {
			return nil, false
		}
		for _, addr := range src.Addresses() {
			seen[addr] = struct{}{}
		}
	}

	addrs := make([]common.Address, 0, len(seen))
	for addr := range seen {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Hex() < addrs[j].Hex() })
	return addrs, true
}

// StartBlock returns the lowest start block across modules
func (r *ModuleRegistry) StartBlock() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var start uint64
	first := true
	for _, m := range r.modules {
		if b := m.GetStartBlock(); first || b < start {
			start = b
			first = false
		}
	}
	return start
}

// Start begins the module registry lifecycle
func (r *ModuleRegistry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("module registry is already running")
	}

	r.running = true
	r.logger.Info().Int("modules", len(r.modules)).Msg("Module registry started")

	return nil
}

// Stop gracefully stops the module registry
func (r *ModuleRegistry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}

	r.running = false
	r.logger.Info().Msg("Module registry stopped")
	return nil
}

// GetModule returns a registered module by name
func (r *ModuleRegistry) GetModule(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	module, exists := r.modules[name]
	return module, exists
}

// ListModules returns all registered module names, sorted
func (r *ModuleRegistry) ListModules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Status returns the current status of a module
func (r *ModuleRegistry) Status(name string) (ModuleStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.status[name]
	return s, ok
}

func (r *ModuleRegistry) setStatus(name string, status ModuleStatus) {
	r.mu.Lock()
	r.status[name] = status
	r.mu.Unlock()
}
