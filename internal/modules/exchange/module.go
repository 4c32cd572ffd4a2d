package exchange

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/UniTradeApp/pancake-subgraph/internal/entity"
	"github.com/UniTradeApp/pancake-subgraph/internal/modules/core"
	"github.com/UniTradeApp/pancake-subgraph/internal/modules/loader"
)

// Module indexes an AMM factory and every pair it creates
type Module struct {
	manifest *core.Manifest
	logger   zerolog.Logger
	parser   *core.EventParser
	store    entity.Store

	metadata TokenMetadataFetcher
	notifier Notifier

	factoryAddress string
	factoryABI     *abi.ABI
	pairABI        *abi.ABI

	config          *Config
	pricing         *Pricing
	candleIntervals []int64

	// Event handlers
	handlers map[common.Hash]EventHandler

	pairsMu sync.RWMutex
	pairs   map[string]struct{}
}

// Config is read from the manifest context block
type Config struct {
	FactoryAddress                  string   `yaml:"factoryAddress"`
	WrappedNative                   string   `yaml:"wrappedNative"`
	Whitelist                       []string `yaml:"whitelist"`
	StablePairs                     []string `yaml:"stablePairs"`
	MinimumLiquidityThresholdNative string   `yaml:"minimumLiquidityThresholdNative"`
	CandleIntervals                 []int64  `yaml:"candleIntervals"`
}

// EventHandler decodes one event kind and applies it
type EventHandler func(ctx context.Context, module *Module, event *core.ParsedEvent) error

// TokenMetadata holds token information fetched from the contract
type TokenMetadata struct {
	Name        string
	Symbol      string
	Decimals    int32
	TotalSupply *big.Int
}

// TokenMetadataFetcher reads ERC20 metadata for newly seen tokens
type TokenMetadataFetcher interface {
	FetchTokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error)
}

// Notifier is told about committed pair changes
type Notifier interface {
	EnqueuePairChanged(address string)
	PublishEvent(address string, eventType string, data interface{})
}

const defaultMinimumLiquidityThreshold = "10"

// NewModuleFromFile loads the manifest at path and builds the module
func NewModuleFromFile(path string, store entity.Store, logger zerolog.Logger) (*Module, error) {
	manifest, err := loader.NewManifestLoader(logger).LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	return NewModule(manifest, store, logger)
}

// NewModule builds the module from a parsed manifest
func NewModule(manifest *core.Manifest, store entity.Store, logger zerolog.Logger) (*Module, error) {
	var config Config
	if manifest.Context != nil {
		contextBytes, err := yaml.Marshal(manifest.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to read module context: %w", err)
		}
		if err := yaml.Unmarshal(contextBytes, &config); err != nil {
			return nil, fmt.Errorf("failed to parse module config: %w", err)
		}
	}

	if config.FactoryAddress == "" {
		for _, ds := range manifest.DataSources {
			if ds.Source.Address != nil {
				config.FactoryAddress = *ds.Source.Address
				break
			}
		}
	}
	if !common.IsHexAddress(config.FactoryAddress) {
		return nil, fmt.Errorf("invalid factory address %q", config.FactoryAddress)
	}
	if !common.IsHexAddress(config.WrappedNative) {
		return nil, fmt.Errorf("invalid wrapped native address %q", config.WrappedNative)
	}

	threshold := config.MinimumLiquidityThresholdNative
	if threshold == "" {
		threshold = defaultMinimumLiquidityThreshold
	}
	minLiquidity, err := decimal.NewFromString(threshold)
	if err != nil {
		return nil, fmt.Errorf("invalid minimumLiquidityThresholdNative: %w", err)
	}

	intervals := config.CandleIntervals
	if len(intervals) == 0 {
		intervals = []int64{HourInterval}
	}
	for _, iv := range intervals {
		if iv <= 0 {
			return nil, fmt.Errorf("invalid candle interval %d", iv)
		}
	}

	module := &Module{
		manifest:        manifest,
		logger:          logger.With().Str("module", manifest.Name).Logger(),
		parser:          core.NewEventParser(),
		store:           store,
		factoryAddress:  strings.ToLower(config.FactoryAddress),
		config:          &config,
		pricing:         NewPricing(config.WrappedNative, config.Whitelist, config.StablePairs, minLiquidity),
		candleIntervals: intervals,
		handlers:        make(map[common.Hash]EventHandler),
		pairs:           make(map[string]struct{}),
	}

	if err := module.initializeABIs(); err != nil {
		return nil, fmt.Errorf("failed to initialize ABIs: %w", err)
	}

	module.registerEventHandlers()

	return module, nil
}

// Name returns the module name
func (m *Module) Name() string {
	return m.manifest.Name
}

// Version returns the module version
func (m *Module) Version() string {
	return m.manifest.Version
}

// Manifest returns the module manifest
func (m *Module) Manifest() *core.Manifest {
	return m.manifest
}

// Pricing exposes the module's price oracle
func (m *Module) Pricing() *Pricing {
	return m.pricing
}

// SetMetadataFetcher injects the ERC20 metadata source
func (m *Module) SetMetadataFetcher(f TokenMetadataFetcher) {
	m.metadata = f
}

// SetNotifier injects the realtime notifier
func (m *Module) SetNotifier(n Notifier) {
	m.notifier = n
}

// Initialize loads the known pair set from the store
func (m *Module) Initialize(ctx context.Context) error {
	ids, err := m.store.PairIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pairs: %w", err)
	}

	m.pairsMu.Lock()
	for _, id := range ids {
		m.pairs[id] = struct{}{}
	}
	m.pairsMu.Unlock()

	m.logger.Info().
		Str("factory", m.factoryAddress).
		Int("pairs", len(ids)).
		Ints64("candle_intervals", m.candleIntervals).
		Msg("Exchange module initialized")
	return nil
}

// HandleEvent routes a factory or pair log to its handler
func (m *Module) HandleEvent(ctx context.Context, event *core.Event) error {
	log := event.Log
	if len(log.Topics) == 0 {
		return nil
	}

	handler, exists := m.handlers[log.Topics[0]]
	if !exists {
		return nil
	}

	address := addrID(log.Address)
	if log.Topics[0] == m.factoryABI.Events["PairCreated"].ID {
		if address != m.factoryAddress {
			return nil
		}
	} else if !m.isKnownPair(address) {
		// Transfer shares its topic with every ERC20
		return nil
	}

	parsedEvent, err := m.parser.ParseEvent(event)
	if err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}

	if err := handler(ctx, m, parsedEvent); err != nil {
		return fmt.Errorf("%s handler failed at block %d log %d: %w",
			parsedEvent.EventName, parsedEvent.BlockNumber, parsedEvent.LogIndex, err)
	}

	m.logger.Debug().
		Str("event", parsedEvent.EventName).
		Str("address", address).
		Uint64("block", parsedEvent.BlockNumber).
		Msg("Processed event")

	return nil
}

// GetEventFilters returns the event filters this module is interested in
func (m *Module) GetEventFilters() []core.EventFilter {
	filters := []core.EventFilter{{
		Address: m.factoryAddress,
		Topic0:  m.factoryABI.Events["PairCreated"].ID.Hex(),
	}}

	// Pair addresses are only known at runtime, see Addresses
	names := make([]string, 0, len(m.pairABI.Events))
	for name := range m.pairABI.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		filters = append(filters, core.EventFilter{Topic0: m.pairABI.Events[name].ID.Hex()})
	}

	return filters
}

// Addresses returns the factory and every known pair
func (m *Module) Addresses() []common.Address {
	m.pairsMu.RLock()
	defer m.pairsMu.RUnlock()

	addrs := make([]common.Address, 0, len(m.pairs)+1)
	addrs = append(addrs, common.HexToAddress(m.factoryAddress))
	for id := range m.pairs {
		addrs = append(addrs, common.HexToAddress(id))
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Hex() < addrs[j].Hex() })
	return addrs
}

// GetStartBlock returns the factory deployment block
func (m *Module) GetStartBlock() uint64 {
	if len(m.manifest.DataSources) > 0 && m.manifest.DataSources[0].Source.StartBlock != nil {
		return *m.manifest.DataSources[0].Source.StartBlock
	}
	return 0
}

func (m *Module) isKnownPair(address string) bool {
	m.pairsMu.RLock()
	defer m.pairsMu.RUnlock()
	_, ok := m.pairs[address]
	return ok
}

func (m *Module) addPair(address string) {
	m.pairsMu.Lock()
	m.pairs[address] = struct{}{}
	m.pairsMu.Unlock()
}

func (m *Module) notifyPair(address string) {
	if m.notifier != nil {
		m.notifier.EnqueuePairChanged(address)
	}
}
