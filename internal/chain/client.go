package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"uniquote/internal/observability"
)

const (
	maxCachedTimestamps = 4096
	maxRetryDelay       = 10 * time.Second
)

// Options configures a Client.
type Options struct {
	// MaxRetries and RetryBackoff apply to contract calls. JSON-RPC error
	// responses, such as reverts, are never retried.
	MaxRetries   int
	RetryBackoff time.Duration
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// Client wraps go-ethereum RPC with the reads needed for quoting and
// scanning. The RPC URL may be http(s) or ws(s); head subscriptions need ws.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	opts      Options

	mu      sync.Mutex
	chainID uint64
	tsCache map[uint64]uint64
}

// NewClient dials the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return newClient(rpcClient, opts), nil
}

func newClient(rpcClient *rpc.Client, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		opts:      opts,
		tsCache:   make(map[uint64]uint64),
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID. The first successful answer is cached.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != 0 {
		return cached, nil
	}

	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}

	c.mu.Lock()
	c.chainID = id.Uint64()
	c.mu.Unlock()
	return id.Uint64(), nil
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.Lock()
	ts, ok := c.tsCache[number]
	c.mu.Unlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", number, err)
	}

	c.mu.Lock()
	if len(c.tsCache) >= maxCachedTimestamps {
		c.tsCache = make(map[uint64]uint64)
	}
	c.tsCache[number] = header.Time
	c.mu.Unlock()

	return header.Time, nil
}

// FilterLogs returns logs in the given range for addresses and topic0 filters.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.ethClient.FilterLogs(ctx, query)
}

// CallContract performs an eth_call, retrying transport failures.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return retry.DoWithData(
		func() ([]byte, error) {
			out, err := c.ethClient.CallContract(ctx, msg, blockNumber)
			if err != nil && !retryable(err) {
				return nil, retry.Unrecoverable(err)
			}
			return out, err
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts(c.opts.MaxRetries)),
		retry.Delay(c.opts.RetryBackoff),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if c.opts.Metrics != nil {
				c.opts.Metrics.RPCRetries.WithLabelValues("eth_call").Inc()
			}
			c.opts.Logger.Debug("retry eth_call", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

// retryAttempts converts a retry count into retry-go attempts. Zero attempts
// would mean retrying forever, so at least one is returned.
func retryAttempts(maxRetries int) uint {
	if maxRetries < 0 {
		return 1
	}
	return uint(maxRetries) + 1
}

// SubscribeNewHead streams new block headers into ch. Over http it fails
// with rpc.ErrNotificationsUnsupported.
func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return c.ethClient.SubscribeNewHead(ctx, ch)
}

// retryable reports whether err looks like a transport failure rather than an
// answer from the node.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rpcErr rpc.Error
	return !errors.As(err, &rpcErr)
}
