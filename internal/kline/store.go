package kline

import (
	"context"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// Store is the persistence seam the Aggregator folds through. The concrete
// implementation (internal/store.KlineStore, gorm-backed) lives in a
// separate package to avoid an import cycle between internal/kline and
// internal/store.
type Store interface {
	// Load returns the open bucket for (symbol, interval, openTime), or nil
	// if no row exists yet.
	Load(ctx context.Context, symbol string, interval domain.Interval, openTime int64) (*domain.Kline, error)
	// Upsert persists the current state of a bucket, keyed by
	// (symbol, interval, openTime).
	Upsert(ctx context.Context, k *domain.Kline) error
	// Range returns the persisted klines for a symbol/interval whose
	// openTime lies within [from, to], ordered by openTime ascending; a
	// still-open bucket in that range is included.
	Range(ctx context.Context, symbol string, interval domain.Interval, from, to int64, limit int) ([]*domain.Kline, error)
}
