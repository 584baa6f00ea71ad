package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"uniquote/internal/model"
)

// Store provides Postgres persistence for pools, quotes and scan progress.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PutPools implements storage.Storage.
func (s *Store) PutPools(ctx context.Context, pools []model.Pool) error {
	return s.UpsertPools(ctx, pools)
}

// PutQuotes implements storage.Storage.
func (s *Store) PutQuotes(ctx context.Context, quotes []model.Quote) error {
	return s.InsertQuotes(ctx, quotes)
}

// PutPricePoints implements storage.Storage.
func (s *Store) PutPricePoints(ctx context.Context, points []model.PricePoint) error {
	return s.UpsertPricePoints(ctx, points)
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, token0, token1, symbol0, symbol1, decimals0, decimals1,
				fee, tick_spacing, first_seen_block, source, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				symbol0 = COALESCE(NULLIF(EXCLUDED.symbol0, ''), pools.symbol0),
				symbol1 = COALESCE(NULLIF(EXCLUDED.symbol1, ''), pools.symbol1),
				decimals0 = COALESCE(EXCLUDED.decimals0, pools.decimals0),
				decimals1 = COALESCE(EXCLUDED.decimals1, pools.decimals1),
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.Token0,
			pool.Token1,
			pool.Symbol0,
			pool.Symbol1,
			nullableDecimals(pool.Decimals0),
			nullableDecimals(pool.Decimals1),
			int64(pool.Fee),
			pool.TickSpacing,
			int64(pool.FirstSeenBlock),
			pool.Source,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertQuotes appends quotes. A pool is quoted at most once per block.
func (s *Store) InsertQuotes(ctx context.Context, quotes []model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, q := range quotes {
		batch.Queue(`
			INSERT INTO quotes (
				chain_id, pool_address, block_number, token0, token1, sqrt_price_x96, tick,
				price0to1, price1to0, digits, quoted_at
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9::numeric, $10, $11::timestamptz)
			ON CONFLICT (chain_id, pool_address, block_number) DO NOTHING
		`,
			int64(q.ChainID),
			q.Pool,
			int64(q.BlockNumber),
			q.Token0.Address,
			q.Token1.Address,
			q.SqrtPriceX96,
			q.Tick,
			q.Price0To1,
			q.Price1To0,
			q.Digits,
			q.QuotedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range quotes {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPricePoints stores swap-derived prices keyed by log position.
func (s *Store) UpsertPricePoints(ctx context.Context, points []model.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO price_points (
				pool_address, block_number, tx_hash, log_index, block_time, sqrt_price_x96, tick,
				amount0, amount1, price0to1, price1to0
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9::numeric, $10::numeric, $11::numeric)
			ON CONFLICT (tx_hash, log_index)
			DO UPDATE SET
				block_time = COALESCE(EXCLUDED.block_time, price_points.block_time),
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				price0to1 = EXCLUDED.price0to1,
				price1to0 = EXCLUDED.price1to0
		`,
			p.Pool,
			int64(p.BlockNumber),
			p.TxHash,
			int64(p.LogIndex),
			nullableTime(p.BlockTime),
			p.SqrtPriceX96,
			p.Tick,
			p.Amount0,
			p.Amount1,
			p.Price0To1,
			p.Price1To0,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range points {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the last processed block stored under name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM scan_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts the last processed block for name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func nullableDecimals(d *uint8) *int16 {
	if d == nil {
		return nil
	}
	v := int16(*d)
	return &v
}

func nullableTime(unix uint64) *time.Time {
	if unix == 0 {
		return nil
	}
	t := time.Unix(int64(unix), 0).UTC()
	return &t
}
