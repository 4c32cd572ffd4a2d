package exchange

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// FactoryABI contains the factory events the module handles
const FactoryABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"token0","type":"address"},
		{"indexed":true,"internalType":"address","name":"token1","type":"address"},
		{"indexed":false,"internalType":"address","name":"pair","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"index","type":"uint256"}
	],"name":"PairCreated","type":"event"}
]`

// PairABI contains the pair events the module handles
const PairABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"from","type":"address"},
		{"indexed":true,"internalType":"address","name":"to","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"value","type":"uint256"}
	],"name":"Transfer","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":false,"internalType":"uint112","name":"reserve0","type":"uint112"},
		{"indexed":false,"internalType":"uint112","name":"reserve1","type":"uint112"}
	],"name":"Sync","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"sender","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"amount0","type":"uint256"},
		{"indexed":false,"internalType":"uint256","name":"amount1","type":"uint256"}
	],"name":"Mint","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"sender","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"amount0","type":"uint256"},
		{"indexed":false,"internalType":"uint256","name":"amount1","type":"uint256"},
		{"indexed":true,"internalType":"address","name":"to","type":"address"}
	],"name":"Burn","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"internalType":"address","name":"sender","type":"address"},
		{"indexed":false,"internalType":"uint256","name":"amount0In","type":"uint256"},
		{"indexed":false,"internalType":"uint256","name":"amount1In","type":"uint256"},
		{"indexed":false,"internalType":"uint256","name":"amount0Out","type":"uint256"},
		{"indexed":false,"internalType":"uint256","name":"amount1Out","type":"uint256"},
		{"indexed":true,"internalType":"address","name":"to","type":"address"}
	],"name":"Swap","type":"event"}
]`

// initializeABIs parses the contract ABIs and registers them with the parser
func (m *Module) initializeABIs() error {
	factoryABI, err := abi.JSON(strings.NewReader(FactoryABI))
	if err != nil {
		return fmt.Errorf("failed to parse factory ABI: %w", err)
	}
	m.factoryABI = &factoryABI

	pairABI, err := abi.JSON(strings.NewReader(PairABI))
	if err != nil {
		return fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	m.pairABI = &pairABI

	m.parser.AddABI(&factoryABI)
	m.parser.AddABI(&pairABI)

	return nil
}
