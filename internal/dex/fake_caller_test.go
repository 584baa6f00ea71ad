package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type fakeCaller struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	calls     map[string]int
	last      ethereum.CallMsg
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func callKey(to common.Address, selector []byte) string {
	return fmt.Sprintf("%s:%x", to.Hex(), selector)
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("bad call")
	}
	key := callKey(*msg.To, msg.Data[:4])
	f.calls[key]++
	f.last = msg
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	resp, ok := f.responses[key]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return resp, nil
}

func (f *fakeCaller) set(t *testing.T, to common.Address, parsed abi.ABI, method string, outputs ...interface{}) {
	t.Helper()
	m, ok := parsed.Methods[method]
	if !ok {
		t.Fatalf("unknown method %s", method)
	}
	data, err := m.Outputs.Pack(outputs...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	f.responses[callKey(to, m.ID)] = data
}

func (f *fakeCaller) fail(t *testing.T, to common.Address, parsed abi.ABI, method string) {
	t.Helper()
	f.errs[callKey(to, parsed.Methods[method].ID)] = fmt.Errorf("execution reverted")
}

func (f *fakeCaller) count(to common.Address, parsed abi.ABI, method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[callKey(to, parsed.Methods[method].ID)]
}

func mustABI(t *testing.T, get func() (abi.ABI, error)) abi.ABI {
	t.Helper()
	parsed, err := get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	return parsed
}

func setToken(t *testing.T, f *fakeCaller, token common.Address, decimals uint8, symbol string) {
	t.Helper()
	erc20 := mustABI(t, ERC20ABI)
	f.set(t, token, erc20, "decimals", decimals)
	f.set(t, token, erc20, "symbol", symbol)
	f.set(t, token, erc20, "name", symbol+" token")
}

func setPool(t *testing.T, f *fakeCaller, pool, token0, token1 common.Address, sqrtPrice *big.Int, tick int64) {
	t.Helper()
	poolABI := mustABI(t, V3PoolABI)
	f.set(t, pool, poolABI, "token0", token0)
	f.set(t, pool, poolABI, "token1", token1)
	f.set(t, pool, poolABI, "fee", big.NewInt(3000))
	f.set(t, pool, poolABI, "tickSpacing", big.NewInt(60))
	f.set(t, pool, poolABI, "slot0", sqrtPrice, big.NewInt(tick), uint16(1), uint16(1), uint16(1), uint8(0), true)
}
