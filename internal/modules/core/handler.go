package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ParsedEvent represents a decoded event log
type ParsedEvent struct {
	Event *Event

	// Event information
	EventName string
	Address   common.Address

	// Parsed event data
	Args map[string]interface{}

	// Transaction context
	TransactionHash common.Hash
	BlockNumber     uint64
	LogIndex        uint
	Timestamp       uint64
	From            common.Address
}

// EventParser handles parsing of event logs using ABI definitions
type EventParser struct {
	events map[common.Hash]abi.Event // topic0 -> event
}

// NewEventParser creates a new event parser
func NewEventParser() *EventParser {
	return &EventParser{
		events: make(map[common.Hash]abi.Event),
	}
}

// AddABI indexes every event of the ABI by its topic hash
func (p *EventParser) AddABI(contractABI *abi.ABI) {
	for _, event := range contractABI.Events {
		p.events[event.ID] = event
	}
}

// ParseEvent decodes the log carried by event
func (p *EventParser) ParseEvent(event *Event) (*ParsedEvent, error) {
	log := event.Log
	if log == nil || len(log.Topics) == 0 {
		return nil, ErrInvalidEvent{Reason: "no topics in log"}
	}

	eventABI, exists := p.events[log.Topics[0]]
	if !exists {
		return nil, ErrUnknownEvent{Topic: log.Topics[0].Hex()}
	}

	indexed := 0
	for _, input := range eventABI.Inputs {
		if input.Indexed {
			indexed++
		}
	}
	if len(log.Topics) != indexed+1 {
		return nil, ErrInvalidEvent{Reason: fmt.Sprintf("%s expects %d topics, got %d", eventABI.Name, indexed+1, len(log.Topics))}
	}

	args := make(map[string]interface{})

	// Indexed parameters live in topics[1:]
	topicIndex := 1
	for _, input := range eventABI.Inputs {
		if input.Indexed {
			args[input.Name] = parseIndexedArg(log.Topics[topicIndex], input.Type)
			topicIndex++
		}
	}

	nonIndexed := eventABI.Inputs.NonIndexed()
	if len(nonIndexed) > 0 {
		values, err := nonIndexed.Unpack(log.Data)
		if err != nil {
			return nil, ErrEventParsing{Event: eventABI.Name, Err: err}
		}
		for i, input := range nonIndexed {
			args[input.Name] = values[i]
		}
	}

	return &ParsedEvent{
		Event:           event,
		EventName:       eventABI.Name,
		Address:         log.Address,
		Args:            args,
		TransactionHash: log.TxHash,
		BlockNumber:     log.BlockNumber,
		LogIndex:        log.Index,
		Timestamp:       event.Timestamp,
		From:            event.From,
	}, nil
}

// AddressArg returns the named address argument
func (e *ParsedEvent) AddressArg(name string) (common.Address, error) {
	v, ok := e.Args[name].(common.Address)
	if !ok {
		return common.Address{}, ErrInvalidEvent{Reason: fmt.Sprintf("%s: missing address argument %q", e.EventName, name)}
	}
	return v, nil
}

// BigArg returns the named integer argument
func (e *ParsedEvent) BigArg(name string) (*big.Int, error) {
	v, ok := e.Args[name].(*big.Int)
	if !ok || v == nil {
		return nil, ErrInvalidEvent{Reason: fmt.Sprintf("%s: missing integer argument %q", e.EventName, name)}
	}
	return v, nil
}

// parseIndexedArg converts a topic hash to the appropriate Go type
func parseIndexedArg(topic common.Hash, argType abi.Type) interface{} {
	switch argType.T {
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes())
	case abi.IntTy, abi.UintTy:
		return new(big.Int).SetBytes(topic.Bytes())
	case abi.BoolTy:
		return topic.Big().Sign() != 0
	case abi.FixedBytesTy:
		return topic.Bytes()
	default:
		// dynamic types are hashed into the topic
		return topic
	}
}

// Error types
type ErrInvalidEvent struct {
	Reason string
}

func (e ErrInvalidEvent) Error() string {
	return "invalid event: " + e.Reason
}

type ErrUnknownEvent struct {
	Topic string
}

func (e ErrUnknownEvent) Error() string {
	return "unknown event topic: " + e.Topic
}

type ErrEventParsing struct {
	Event string
	Err   error
}

func (e ErrEventParsing) Error() string {
	return "failed to parse event " + e.Event + ": " + e.Err.Error()
}

func (e ErrEventParsing) Unwrap() error {
	return e.Err
}
