package rpc

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

const defaultTimeout = 30 * time.Second

// Client wraps an ethclient for the calls the indexer makes
type Client struct {
	client   *ethclient.Client
	raw      *rpc.Client
	endpoint string
	chainID  *big.Int
	signer   types.Signer
	logger   zerolog.Logger
}

// NewClient dials endpoint and checks the node's chain id
func NewClient(ctx context.Context, endpoint string, chainID int64, logger zerolog.Logger) (*Client, error) {
	httpClient := &http.Client{
		Timeout: defaultTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	rpcClient, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	client := ethclient.NewClient(rpcClient)

	verifyCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	networkID, err := client.ChainID(verifyCtx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to verify chain ID, continuing anyway")
	} else if networkID.Int64() != chainID {
		client.Close()
		return nil, fmt.Errorf("chain id mismatch: configured %d, node reports %d", chainID, networkID.Int64())
	}

	logger.Info().
		Str("endpoint", endpoint).
		Int64("chain_id", chainID).
		Msg("Connected to RPC endpoint")

	id := big.NewInt(chainID)
	return &Client{
		client:   client,
		raw:      rpcClient,
		endpoint: endpoint,
		chainID:  id,
		signer:   types.LatestSignerForChainID(id),
		logger:   logger.With().Str("component", "rpc").Logger(),
	}, nil
}

// Close closes the RPC client connection
func (c *Client) Close() {
	c.client.Close()
	c.logger.Info().Msg("RPC client connection closed")
}

// ContractCaller exposes eth_call for contract bindings
func (c *Client) ContractCaller() bind.ContractCaller {
	return c.client
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}

// LatestBlockNumber returns the chain head
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return n, nil
}

// FilterLogs fetches logs in [from, to] emitted by addresses whose topic0
// is one of topics. A nil address list matches every contract.
func (c *Client) FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics []common.Hash) ([]types.Log, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
		Topics:    [][]common.Hash{topics},
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs %d-%d: %w", from, to, err)
	}
	return logs, nil
}

// BlockTimestamp returns the block time in seconds
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("failed to get header %d: %w", number, err)
	}
	return header.Time, nil
}

// TxSender recovers the sender of a transaction
func (c *Client) TxSender(ctx context.Context, hash common.Hash) (common.Address, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, _, err := c.client.TransactionByHash(ctx, hash)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get transaction %s: %w", hash.Hex(), err)
	}
	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover sender of %s: %w", hash.Hex(), err)
	}
	return from, nil
}

// Retry calls fn until it succeeds, maxRetries is reached or ctx is done
func Retry(ctx context.Context, logger zerolog.Logger, maxRetries int, fn func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}

		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * time.Second
			logger.Warn().
				Err(err).
				Int("attempt", i+1).
				Dur("wait", waitTime).
				Msg("Retrying RPC call")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}
	return fmt.Errorf("max retries exceeded: %w", err)
}
