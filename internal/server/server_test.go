package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uniquote/internal/model"
	"uniquote/internal/observability"
	"uniquote/internal/price"
)

var (
	dai     = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	weth    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	daiWeth = common.HexToAddress("0xC2e9F25Be6257c210d7Adf0D4Cd6E3E881ba25f8")
	empty   = common.HexToAddress("0x0000000000000000000000000000000000000bad")
)

type fakeQuoter struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeQuoter) ChainID() uint64 { return 1 }

func (f *fakeQuoter) Quote(_ context.Context, pool common.Address) (model.Quote, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	switch pool {
	case daiWeth:
		return model.Quote{
			ChainID:   1,
			Pool:      pool.Hex(),
			Token0:    model.TokenMeta{Address: dai.Hex(), Symbol: "DAI"},
			Token1:    model.TokenMeta{Address: weth.Hex(), Symbol: "WETH"},
			Price0To1: "0.000331956",
			Price1To0: "3012.45",
		}, nil
	case empty:
		return model.Quote{}, fmt.Errorf("price pool: %w", price.ErrInvalidPriceState)
	default:
		return model.Quote{}, errors.New("dial tcp: connection refused")
	}
}

type memoryCache struct {
	mu     sync.Mutex
	quotes map[string]model.Quote
}

func newMemoryCache() *memoryCache {
	return &memoryCache{quotes: map[string]model.Quote{}}
}

func (m *memoryCache) Get(_ context.Context, chainID uint64, pool string) (model.Quote, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[fmt.Sprintf("%d:%s", chainID, strings.ToLower(pool))]
	return q, ok, nil
}

func (m *memoryCache) Set(_ context.Context, q model.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[fmt.Sprintf("%d:%s", q.ChainID, strings.ToLower(q.Pool))] = q
	return nil
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestUniswap3BaseDirection(t *testing.T) {
	srv := NewServer(Config{Pool: daiWeth, Base: weth}, &fakeQuoter{}, nil, nil, nil)
	rec, body := get(t, srv.Handler(), "/uniswap3")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"1 WETH to DAI": "3012.45"}, body)
}

func TestUniswap3BothDirections(t *testing.T) {
	srv := NewServer(Config{Pool: daiWeth}, &fakeQuoter{}, nil, nil, nil)
	rec, body := get(t, srv.Handler(), "/uniswap3")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3012.45", body["1 WETH to DAI"])
	assert.Equal(t, "0.000331956", body["1 DAI to WETH"])
}

func TestUniswap3WithoutPool(t *testing.T) {
	srv := NewServer(Config{}, &fakeQuoter{}, nil, nil, nil)
	rec, _ := get(t, srv.Handler(), "/uniswap3")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuoteEndpoint(t *testing.T) {
	srv := NewServer(Config{}, &fakeQuoter{}, nil, nil, nil)

	rec, body := get(t, srv.Handler(), "/quote?pool="+daiWeth.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3012.45", body["price1to0"])
	assert.Equal(t, daiWeth.Hex(), body["pool"])

	rec, body = get(t, srv.Handler(), "/quote?pool=nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestQuoteErrorMapping(t *testing.T) {
	srv := NewServer(Config{}, &fakeQuoter{}, nil, nil, nil)

	rec, body := get(t, srv.Handler(), "/quote?pool="+empty.Hex())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body["error"], "invalid price state")

	rec, _ = get(t, srv.Handler(), "/quote?pool="+weth.Hex())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestQuoteUsesCache(t *testing.T) {
	quoter := &fakeQuoter{}
	metrics := observability.NewMetrics("")
	srv := NewServer(Config{Pool: daiWeth, Base: weth}, quoter, newMemoryCache(), metrics, nil)
	h := srv.Handler()

	for i := 0; i < 3; i++ {
		rec, _ := get(t, h, "/uniswap3")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, quoter.calls)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CacheRequests.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheRequests.WithLabelValues("miss")))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/uniswap3", "200")))
}

func TestHealthAndMetrics(t *testing.T) {
	srv := NewServer(Config{}, &fakeQuoter{}, nil, observability.NewMetrics(""), nil)
	h := srv.Handler()

	rec, body := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "uniquote_http_requests_total")
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer(Config{}, &fakeQuoter{}, nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/quote", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCacheSink(t *testing.T) {
	cache := newMemoryCache()
	sink := NewCacheSink(cache)
	require.NoError(t, sink.PutQuotes(context.Background(), []model.Quote{{ChainID: 1, Pool: daiWeth.Hex(), Price0To1: "1"}}))

	q, ok, err := cache.Get(context.Background(), 1, daiWeth.Hex())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", q.Price0To1)
}

func TestListenAndServeShutsDown(t *testing.T) {
	srv := NewServer(Config{}, &fakeQuoter{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
