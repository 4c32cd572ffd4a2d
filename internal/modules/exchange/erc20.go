package exchange

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

// ErrMetadataUnavailable means the token contract does not answer a
// metadata getter. Transport and context failures never wrap it.
var ErrMetadataUnavailable = errors.New("token metadata unavailable")

// executionRevertedCode is the JSON-RPC error code nodes use for reverts
const executionRevertedCode = 3

// contractFailure reports whether err came from the contract itself: a
// revert, a missing contract or return data that does not decode.
func contractFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, bind.ErrNoCode) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == executionRevertedCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "execution reverted") || strings.HasPrefix(msg, "abi:")
}

// string and bytes32 variants of the metadata getters; some early tokens
// only expose the upper-case bytes32 ones
const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"NAME","outputs":[{"name":"","type":"bytes32"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"SYMBOL","outputs":[{"name":"","type":"bytes32"}],"type":"function"}
]`

// ContractMetadataFetcher reads ERC20 metadata with eth_call
type ContractMetadataFetcher struct {
	caller bind.ContractCaller
	abi    abi.ABI
	logger zerolog.Logger
}

func NewContractMetadataFetcher(caller bind.ContractCaller, logger zerolog.Logger) (*ContractMetadataFetcher, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	return &ContractMetadataFetcher{
		caller: caller,
		abi:    parsed,
		logger: logger.With().Str("component", "erc20_metadata").Logger(),
	}, nil
}

// FetchTokenMetadata returns whatever the token exposes. A token that does
// not answer decimals() yields ErrMetadataUnavailable; missing name, symbol
// or totalSupply are left empty. Any other failure is returned as is.
func (f *ContractMetadataFetcher) FetchTokenMetadata(ctx context.Context, token common.Address) (*TokenMetadata, error) {
	contract := bind.NewBoundContract(token, f.abi, f.caller, nil, nil)
	opts := &bind.CallOpts{Context: ctx}

	// call reports false when the contract does not answer method
	call := func(method string, out interface{}) (bool, error) {
		results := []interface{}{out}
		err := contract.Call(opts, &results, method)
		switch {
		case err == nil:
			return true, nil
		case contractFailure(err):
			return false, nil
		default:
			return false, fmt.Errorf("%s() on %s: %w", method, token.Hex(), err)
		}
	}

	md := &TokenMetadata{}

	var decimals uint8
	ok, err := call("decimals", &decimals)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("decimals() on %s: %w", token.Hex(), ErrMetadataUnavailable)
	}
	md.Decimals = int32(decimals)

	if md.Name, err = readString(call, "name", "NAME"); err != nil {
		return nil, err
	}
	if md.Symbol, err = readString(call, "symbol", "SYMBOL"); err != nil {
		return nil, err
	}

	supply := new(big.Int)
	ok, err = call("totalSupply", &supply)
	if err != nil {
		return nil, err
	}
	if ok {
		md.TotalSupply = supply
	}

	f.logger.Debug().
		Str("token", token.Hex()).
		Str("name", md.Name).
		Str("symbol", md.Symbol).
		Int32("decimals", md.Decimals).
		Msg("Fetched token metadata via RPC")

	return md, nil
}

func readString(call func(string, interface{}) (bool, error), method, fallback string) (string, error) {
	var s string
	ok, err := call(method, &s)
	if err != nil {
		return "", err
	}
	if ok && s != "" {
		return s, nil
	}
	var b32 [32]byte
	ok, err = call(fallback, &b32)
	if err != nil || !ok {
		return "", err
	}
	return strings.TrimRight(string(b32[:]), "\x00"), nil
}
