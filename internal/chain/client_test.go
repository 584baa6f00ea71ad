package chain

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// fakeEth serves the eth_ methods the client uses.
type fakeEth struct {
	chainIDFails atomic.Int32
	chainIDCalls atomic.Int32
	headerCalls  atomic.Int32
	callCalls    atomic.Int32
}

func (f *fakeEth) ChainId() (*hexutil.Big, error) {
	f.chainIDCalls.Add(1)
	if f.chainIDFails.Load() > 0 {
		f.chainIDFails.Add(-1)
		return nil, errors.New("node syncing")
	}
	return (*hexutil.Big)(big.NewInt(1)), nil
}

func (f *fakeEth) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(19000000)
}

func (f *fakeEth) GetBlockByNumber(number hexutil.Uint64, _ bool) (*types.Header, error) {
	f.headerCalls.Add(1)
	return &types.Header{
		Number:     new(big.Int).SetUint64(uint64(number)),
		Time:       1700000000 + uint64(number),
		Difficulty: big.NewInt(0),
	}, nil
}

func (f *fakeEth) Call(_ map[string]interface{}, _ string) (hexutil.Bytes, error) {
	f.callCalls.Add(1)
	return nil, errors.New("execution reverted")
}

func newTestClient(t *testing.T, opts Options) (*Client, *fakeEth) {
	t.Helper()
	eth := &fakeEth{}
	server := rpc.NewServer()
	if err := server.RegisterName("eth", eth); err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(server.Stop)

	client := newClient(rpc.DialInProc(server), opts)
	t.Cleanup(client.Close)
	return client, eth
}

func TestClientChainIDCached(t *testing.T) {
	client, eth := newTestClient(t, Options{})

	for i := 0; i < 3; i++ {
		id, err := client.ChainID(context.Background())
		if err != nil {
			t.Fatalf("chain id: %v", err)
		}
		if id != 1 {
			t.Fatalf("chain id = %d", id)
		}
	}
	if n := eth.chainIDCalls.Load(); n != 1 {
		t.Fatalf("eth_chainId calls = %d, want 1", n)
	}
}

func TestClientChainIDRetriesAfterFailure(t *testing.T) {
	client, eth := newTestClient(t, Options{})
	eth.chainIDFails.Store(1)

	if _, err := client.ChainID(context.Background()); err == nil {
		t.Fatalf("expected chain id error")
	}
	id, err := client.ChainID(context.Background())
	if err != nil {
		t.Fatalf("chain id after failure: %v", err)
	}
	if id != 1 {
		t.Fatalf("chain id = %d", id)
	}
	if _, err := client.ChainID(context.Background()); err != nil {
		t.Fatalf("cached chain id: %v", err)
	}
	if n := eth.chainIDCalls.Load(); n != 2 {
		t.Fatalf("eth_chainId calls = %d, want 2", n)
	}
}

func TestClientBlockTimestampCached(t *testing.T) {
	client, eth := newTestClient(t, Options{})

	for i := 0; i < 2; i++ {
		ts, err := client.BlockTimestamp(context.Background(), 7)
		if err != nil {
			t.Fatalf("timestamp: %v", err)
		}
		if ts != 1700000007 {
			t.Fatalf("timestamp = %d", ts)
		}
	}
	if n := eth.headerCalls.Load(); n != 1 {
		t.Fatalf("header calls = %d, want 1", n)
	}
}

func TestClientCallContractDoesNotRetryRevert(t *testing.T) {
	client, eth := newTestClient(t, Options{MaxRetries: 3, RetryBackoff: time.Millisecond})

	to := common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	_, err := client.CallContract(context.Background(), ethereum.CallMsg{To: &to}, nil)
	if err == nil {
		t.Fatalf("expected revert error")
	}
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected rpc.Error, got %T %v", err, err)
	}
	if n := eth.callCalls.Load(); n != 1 {
		t.Fatalf("eth_call calls = %d, want 1", n)
	}
}

func TestRetryable(t *testing.T) {
	if !retryable(errors.New("connection reset by peer")) {
		t.Fatalf("transport error should be retryable")
	}
	if retryable(context.DeadlineExceeded) {
		t.Fatalf("deadline should not be retryable")
	}
}

func TestRetryAttempts(t *testing.T) {
	cases := map[int]uint{-1: 1, 0: 1, 3: 4}
	for retries, want := range cases {
		if got := retryAttempts(retries); got != want {
			t.Fatalf("retryAttempts(%d) = %d, want %d", retries, got, want)
		}
	}
}
