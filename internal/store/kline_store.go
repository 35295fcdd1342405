package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// KlineStore implements internal/kline.Store over gorm/postgres. It is the
// durable half of the Kline Aggregator the teacher's
// TimeframeAggregator never had (that one kept history only in a bounded
// in-memory slice).
type KlineStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewKlineStore wires a KlineStore over an already-connected gorm handle.
func NewKlineStore(db *gorm.DB, logger *zap.Logger) *KlineStore {
	return &KlineStore{db: db, logger: logger}
}

// Migrate runs gorm auto-migration for the kline table.
func (s *KlineStore) Migrate() error {
	return s.db.AutoMigrate(&klineRow{})
}

func (s *KlineStore) Load(ctx context.Context, symbol string, interval domain.Interval, openTimeMs int64) (*domain.Kline, error) {
	var row klineRow
	result := s.db.WithContext(ctx).First(&row, "symbol = ? AND interval = ? AND open_time_ms = ?", symbol, string(interval), openTimeMs)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.logger.Error("kline load failed", zap.Error(result.Error), zap.String("symbol", symbol))
		return nil, result.Error
	}
	return row.toDomain(), nil
}

// Upsert writes the bucket's full OHLCV state, keyed on
// (symbol, interval, open_time_ms). Klines are overwritten wholesale on
// every fold rather than incrementally patched, matching the in-memory
// teacher's mutate-in-place semantics adapted to a durable row.
func (s *KlineStore) Upsert(ctx context.Context, k *domain.Kline) error {
	row := fromDomainKline(k)
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "interval"}, {Name: "open_time_ms"}},
		DoUpdates: clause.AssignmentColumns([]string{"close_time_ms", "open", "high", "low", "close", "base_volume", "quote_volume", "trade_count"}),
	}).Create(row)
	if result.Error != nil {
		s.logger.Error("kline upsert failed", zap.Error(result.Error), zap.String("symbol", k.Symbol))
		return result.Error
	}
	return nil
}

func (s *KlineStore) Range(ctx context.Context, symbol string, interval domain.Interval, from, to int64, limit int) ([]*domain.Kline, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []klineRow
	result := s.db.WithContext(ctx).
		Where("symbol = ? AND interval = ? AND open_time_ms BETWEEN ? AND ?", symbol, string(interval), from, to).
		Order("open_time_ms ASC").
		Limit(limit).
		Find(&rows)
	if result.Error != nil {
		s.logger.Error("kline range failed", zap.Error(result.Error), zap.String("symbol", symbol))
		return nil, result.Error
	}

	klines := make([]*domain.Kline, len(rows))
	for i := range rows {
		klines[i] = rows[i].toDomain()
	}
	return klines, nil
}
