package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Module is a unit of indexing logic fed with chain logs in canonical order,
// in the spirit of a subgraph mapping.
type Module interface {
	// Name returns the unique name of the module
	Name() string

	// Version returns the module version
	Version() string

	// Manifest returns the module's manifest configuration
	Manifest() *Manifest

	// Initialize prepares any state the module needs before the first event
	Initialize(ctx context.Context) error

	// HandleEvent processes a single log. A returned error means none of the
	// event's writes were applied.
	HandleEvent(ctx context.Context, event *Event) error

	// GetEventFilters returns the event filters this module is interested in
	GetEventFilters() []EventFilter

	// GetStartBlock returns the block number from which this module should start processing
	GetStartBlock() uint64
}

// AddressSource is implemented by modules whose contract set grows at
// runtime, such as factories that deploy pairs.
type AddressSource interface {
	Addresses() []common.Address
}

// Event is a chain log together with the block and transaction context a
// handler needs.
type Event struct {
	Log *types.Log

	// Timestamp is the block time in seconds
	Timestamp uint64

	// From is the sender of the transaction that emitted the log
	From common.Address
}

// EventFilter defines what events a module wants to receive
type EventFilter struct {
	// Address is the contract address to watch (optional, empty = all addresses)
	Address string `yaml:"address,omitempty"`

	// Topic0 is the event signature hash (optional, empty = all events)
	Topic0 string `yaml:"topic0,omitempty"`
}

// ModuleStatus represents the possible states of a module
type ModuleStatus string

const (
	StatusActive ModuleStatus = "active"
	StatusError  ModuleStatus = "error"
)
