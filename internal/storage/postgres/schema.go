package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	chain_id         BIGINT      NOT NULL,
	pool_address     TEXT        NOT NULL,
	token0           TEXT        NOT NULL,
	token1           TEXT        NOT NULL,
	symbol0          TEXT        NOT NULL DEFAULT '',
	symbol1          TEXT        NOT NULL DEFAULT '',
	decimals0        SMALLINT,
	decimals1        SMALLINT,
	fee              BIGINT      NOT NULL,
	tick_spacing     INTEGER     NOT NULL,
	first_seen_block BIGINT      NOT NULL,
	source           TEXT        NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address)
);

CREATE TABLE IF NOT EXISTS quotes (
	chain_id       BIGINT      NOT NULL,
	pool_address   TEXT        NOT NULL,
	block_number   BIGINT      NOT NULL,
	token0         TEXT        NOT NULL,
	token1         TEXT        NOT NULL,
	sqrt_price_x96 NUMERIC     NOT NULL,
	tick           INTEGER     NOT NULL,
	price0to1      NUMERIC     NOT NULL,
	price1to0      NUMERIC     NOT NULL,
	digits         INTEGER     NOT NULL,
	quoted_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address, block_number)
);

CREATE TABLE IF NOT EXISTS price_points (
	pool_address   TEXT    NOT NULL,
	block_number   BIGINT  NOT NULL,
	tx_hash        TEXT    NOT NULL,
	log_index      BIGINT  NOT NULL,
	block_time     TIMESTAMPTZ,
	sqrt_price_x96 NUMERIC NOT NULL,
	tick           INTEGER NOT NULL,
	amount0        NUMERIC NOT NULL,
	amount1        NUMERIC NOT NULL,
	price0to1      NUMERIC NOT NULL,
	price1to0      NUMERIC NOT NULL,
	PRIMARY KEY (tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS scan_state (
	name                 TEXT        PRIMARY KEY,
	last_processed_block BIGINT      NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables used by Store when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
