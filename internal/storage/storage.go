package storage

import (
	"context"

	"uniquote/internal/model"
)

// Storage is a sink for discovered pools, quotes and swap price points.
type Storage interface {
	PutPools(ctx context.Context, pools []model.Pool) error
	PutQuotes(ctx context.Context, quotes []model.Quote) error
	PutPricePoints(ctx context.Context, points []model.PricePoint) error
}
