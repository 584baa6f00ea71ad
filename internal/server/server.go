package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"uniquote/internal/model"
	"uniquote/internal/observability"
	"uniquote/internal/price"
)

// Quoter prices a pool at the latest block. *quote.Service satisfies it.
type Quoter interface {
	ChainID() uint64
	Quote(ctx context.Context, pool common.Address) (model.Quote, error)
}

// QuoteCache stores recent quotes. storage/redis.QuoteCache satisfies it.
type QuoteCache interface {
	Get(ctx context.Context, chainID uint64, pool string) (model.Quote, bool, error)
	Set(ctx context.Context, q model.Quote) error
}

// Config holds HTTP server settings.
type Config struct {
	// Pool is the pool served on /uniswap3.
	Pool common.Address
	// Base selects the direction on /uniswap3: the rate for one unit of Base.
	// The zero address serves both directions.
	Base           common.Address
	RequestTimeout time.Duration
}

// Server exposes pool quotes over HTTP.
type Server struct {
	cfg     Config
	quoter  Quoter
	cache   QuoteCache
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewServer builds a Server. cache and metrics may be nil.
func NewServer(cfg Config, quoter Quoter, cache QuoteCache, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, quoter: quoter, cache: cache, metrics: metrics, logger: logger}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/uniswap3", s.handlePair).Methods(http.MethodGet)
	r.HandleFunc("/quote", s.handleQuote).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.Use(s.instrument)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http listen", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pool == (common.Address{}) {
		writeError(w, http.StatusNotFound, "no default pool configured")
		return
	}
	q, ok := s.quote(w, r, s.cfg.Pool)
	if !ok {
		return
	}

	body := map[string]string{}
	if s.cfg.Base != (common.Address{}) {
		label, value, found := q.RateFrom(s.cfg.Base.Hex())
		if !found {
			writeError(w, http.StatusInternalServerError, "base token is not part of the pool")
			return
		}
		body[label] = value
	} else {
		body[q.Label0To1()] = q.Price0To1
		body[q.Label1To0()] = q.Price1To0
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("pool")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "query parameter pool must be a hex address")
		return
	}
	q, ok := s.quote(w, r, common.HexToAddress(raw))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// quote returns a cached quote or computes a fresh one. On failure the
// error response has already been written.
func (s *Server) quote(w http.ResponseWriter, r *http.Request, pool common.Address) (model.Quote, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	if s.cache != nil {
		q, hit, err := s.cache.Get(ctx, s.quoter.ChainID(), pool.Hex())
		switch {
		case err != nil:
			s.logger.Warn("quote cache get failed", zap.String("pool", pool.Hex()), zap.Error(err))
		case hit:
			s.countCache("hit")
			return q, true
		default:
			s.countCache("miss")
		}
	}

	q, err := s.quoter.Quote(ctx, pool)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, price.ErrInvalidPriceState) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Warn("quote failed", zap.String("pool", pool.Hex()), zap.Int("status", status), zap.Error(err))
		writeError(w, status, err.Error())
		return model.Quote{}, false
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, q); err != nil {
			s.logger.Warn("quote cache set failed", zap.String("pool", pool.Hex()), zap.Error(err))
		}
	}
	return q, true
}

func (s *Server) countCache(result string) {
	if s.metrics != nil {
		s.metrics.CacheRequests.WithLabelValues(result).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
