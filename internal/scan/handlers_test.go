package scan

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"uniquote/internal/dex"
	"uniquote/internal/model"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	pool = common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8")
)

func poolCreatedLog(t *testing.T, token0, token1, pool common.Address, fee int64, block uint64, index uint) types.Log {
	t.Helper()
	factoryABI, err := dex.V3FactoryABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	event := factoryABI.Events["PoolCreated"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(60), pool)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		BlockNumber: block,
		Index:       index,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(token0.Bytes()),
			common.BytesToHash(token1.Bytes()),
			common.BigToHash(big.NewInt(fee)),
		},
		Data: data,
	}
}

func swapLog(t *testing.T, pool common.Address, sqrtPrice *big.Int, block uint64, index uint) types.Log {
	t.Helper()
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	event := poolABI.Events["Swap"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(-5000000), big.NewInt(1000000000000000), sqrtPrice, big.NewInt(1), big.NewInt(0))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address:     pool,
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		Topics:      []common.Hash{event.ID, {}, {}},
		Data:        data,
	}
}

type stubTokens struct {
	meta  map[common.Address]model.TokenMeta
	calls int
}

func (s *stubTokens) Token(_ context.Context, token common.Address) model.TokenMeta {
	s.calls++
	if meta, ok := s.meta[token]; ok {
		return meta
	}
	return model.TokenMeta{Address: token.Hex()}
}

type memorySink struct {
	pools  []model.Pool
	points []model.PricePoint
}

func (m *memorySink) PutPools(_ context.Context, pools []model.Pool) error {
	m.pools = append(m.pools, pools...)
	return nil
}

func (m *memorySink) PutPricePoints(_ context.Context, points []model.PricePoint) error {
	m.points = append(m.points, points...)
	return nil
}

func decimals(d uint8) *uint8 { return &d }

func TestPoolDiscovererHandleLogs(t *testing.T) {
	tokens := &stubTokens{meta: map[common.Address]model.TokenMeta{
		usdc: {Address: usdc.Hex(), Symbol: "USDC", Decimals: decimals(6)},
		weth: {Address: weth.Hex(), Symbol: "WETH", Decimals: decimals(18)},
	}}
	sink := &memorySink{}
	d := NewPoolDiscoverer(1, NewRegistry(), tokens, sink, nil)

	second := common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	logs := []types.Log{
		poolCreatedLog(t, usdc, weth, pool, 3000, 12376729, 0),
		{BlockNumber: 12376729, Index: 1},
		poolCreatedLog(t, usdc, weth, second, 500, 12376729, 2),
	}
	if err := d.HandleLogs(context.Background(), BlockRange{From: 12376729, To: 12376729}, logs); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(sink.pools) != 2 {
		t.Fatalf("stored pools = %d", len(sink.pools))
	}
	got := sink.pools[0]
	if got.Address != pool.Hex() || got.Fee != 3000 || got.ChainID != 1 || got.Source != model.PoolSourceFactory {
		t.Fatalf("pool mismatch: %+v", got)
	}
	if got.Symbol0 != "USDC" || got.Symbol1 != "WETH" || *got.Decimals0 != 6 || *got.Decimals1 != 18 {
		t.Fatalf("token metadata mismatch: %+v", got)
	}
	if tokens.calls != 2 {
		t.Fatalf("token lookups = %d, want 2 (registry cache)", tokens.calls)
	}
	if n := len(d.Registry().PoolsForPair(weth, usdc)); n != 2 {
		t.Fatalf("pools for pair = %d", n)
	}

	// Replaying the same logs stores nothing new.
	if err := d.HandleLogs(context.Background(), BlockRange{}, logs); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(sink.pools) != 2 {
		t.Fatalf("replay stored duplicates: %d", len(sink.pools))
	}
}

func TestSwapHistoryHandleLogs(t *testing.T) {
	sink := &memorySink{}
	token0 := model.TokenMeta{Address: usdc.Hex(), Symbol: "USDC", Decimals: decimals(6)}
	token1 := model.TokenMeta{Address: weth.Hex(), Symbol: "WETH", Decimals: decimals(18)}
	h := NewSwapHistory(token0, token1, 6, sink, nil)

	// 3000 USDC per WETH: sqrtPriceX96 = sqrt(2^192 * 1e12 / 3000).
	sqrtPrice, _ := new(big.Int).SetString("1446501726624926496477173928747177", 10)
	logs := []types.Log{
		swapLog(t, pool, sqrtPrice, 100, 0),
		swapLog(t, pool, big.NewInt(0), 101, 0),
	}
	if err := h.HandleLogs(context.Background(), BlockRange{From: 100, To: 101}, logs); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sink.points) != 1 {
		t.Fatalf("points = %d, want 1 (zero price skipped)", len(sink.points))
	}
	point := sink.points[0]
	if point.Price1To0 != "3000" {
		t.Fatalf("price1to0 = %s", point.Price1To0)
	}
	if point.Amount0 != "-5000000" || point.BlockNumber != 100 || point.Pool != pool.Hex() {
		t.Fatalf("point mismatch: %+v", point)
	}
}

func TestSwapHistoryMissingDecimals(t *testing.T) {
	sink := &memorySink{}
	h := NewSwapHistory(model.TokenMeta{Address: usdc.Hex()}, model.TokenMeta{Address: weth.Hex(), Decimals: decimals(18)}, 6, sink, nil)
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	if err := h.HandleLogs(context.Background(), BlockRange{}, []types.Log{swapLog(t, pool, sqrtPrice, 1, 0)}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sink.points) != 0 {
		t.Fatalf("expected no points without token0 decimals")
	}
}

func TestRegistryKeepsEarliestBlock(t *testing.T) {
	r := NewRegistry()
	if !r.AddPool(model.Pool{Address: pool.Hex(), FirstSeenBlock: 10}) {
		t.Fatalf("first add should be new")
	}
	if r.AddPool(model.Pool{Address: pool.Hex(), FirstSeenBlock: 20}) {
		t.Fatalf("second add should not be new")
	}
	got, ok := r.Pool(pool)
	if !ok || got.FirstSeenBlock != 10 {
		t.Fatalf("pool = %+v", got)
	}
	r.AddPool(model.Pool{Address: weth.Hex(), FirstSeenBlock: 5})
	if pools := r.Pools(); len(pools) != 2 || pools[0].FirstSeenBlock != 5 {
		t.Fatalf("pools order mismatch: %+v", pools)
	}
}

type fixedTimes map[uint64]uint64

func (f fixedTimes) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return f[number], nil
}

func TestSwapHistoryBlockTimes(t *testing.T) {
	sink := &memorySink{}
	d := decimals(18)
	h := NewSwapHistory(model.TokenMeta{Address: usdc.Hex(), Decimals: d}, model.TokenMeta{Address: weth.Hex(), Decimals: d}, 6, sink, nil).
		WithBlockTimes(fixedTimes{7: 1700000000})

	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	if err := h.HandleLogs(context.Background(), BlockRange{}, []types.Log{swapLog(t, pool, sqrtPrice, 7, 0)}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sink.points) != 1 || sink.points[0].BlockTime != 1700000000 {
		t.Fatalf("points = %+v", sink.points)
	}
	if sink.points[0].Price0To1 != "1" {
		t.Fatalf("price0to1 = %s", sink.points[0].Price0To1)
	}
}
