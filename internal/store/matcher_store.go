package store

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// matcherRow is the gorm row for a per-symbol OrderMatcher (spec §3),
// persisted state layout's order_matchers collection (spec §6).
type matcherRow struct {
	Symbol               string `gorm:"primaryKey;type:varchar(32)"`
	IsActive             bool   `gorm:"index"`
	BatchSize            int
	LastMatchTime        time.Time
	TotalOrdersProcessed int64
	TotalTradesGenerated int64
	LastMatchTimeMs      int64
	AverageMatchTimeMs   float64
}

func (matcherRow) TableName() string { return "order_matchers" }

func fromDomainMatcher(m *domain.OrderMatcher) *matcherRow {
	return &matcherRow{
		Symbol:               m.Symbol,
		IsActive:             m.IsActive,
		BatchSize:            m.BatchSize,
		LastMatchTime:        m.LastMatchTime,
		TotalOrdersProcessed: m.Stats.TotalOrdersProcessed,
		TotalTradesGenerated: m.Stats.TotalTradesGenerated,
		LastMatchTimeMs:      m.Stats.LastMatchTimeMs,
		AverageMatchTimeMs:   m.Stats.AverageMatchTimeMs,
	}
}

func (r *matcherRow) toDomain() *domain.OrderMatcher {
	return &domain.OrderMatcher{
		Symbol:        r.Symbol,
		IsActive:      r.IsActive,
		BatchSize:     r.BatchSize,
		LastMatchTime: r.LastMatchTime,
		Stats: domain.MatcherStats{
			TotalOrdersProcessed: r.TotalOrdersProcessed,
			TotalTradesGenerated: r.TotalTradesGenerated,
			LastMatchTimeMs:      r.LastMatchTimeMs,
			AverageMatchTimeMs:   r.AverageMatchTimeMs,
		},
	}
}

// MatcherStore is the gorm/postgres-backed home for per-symbol OrderMatcher
// rows: the scheduler's source of which symbols are active and what
// batch size each one matches at, and the moving statistics each cycle
// folds in (spec §3, §6 "order_matchers").
type MatcherStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewMatcherStore wires a MatcherStore over an already-connected gorm handle.
func NewMatcherStore(db *gorm.DB, logger *zap.Logger) *MatcherStore {
	return &MatcherStore{db: db, logger: logger}
}

// Migrate runs gorm auto-migration for the order_matchers table.
func (s *MatcherStore) Migrate() error {
	return s.db.AutoMigrate(&matcherRow{})
}

// EnsureMatcher inserts a default (batchSize, active) OrderMatcher row for
// symbol if one does not already exist, leaving any existing row untouched
// (spec §6: "matching.batchSize per matcher ... default 1000").
func (s *MatcherStore) EnsureMatcher(symbol string, defaultBatchSize int) error {
	row := &matcherRow{Symbol: symbol, IsActive: true, BatchSize: defaultBatchSize}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

// ListActive returns every OrderMatcher with is_active = true, the set the
// scheduler drives one cycle per tick for (spec §4.3 "for each active
// matcher M").
func (s *MatcherStore) ListActive() ([]*domain.OrderMatcher, error) {
	var rows []matcherRow
	if err := s.db.Where("is_active = ?", true).Find(&rows).Error; err != nil {
		s.logger.Error("list active matchers failed", zap.Error(err))
		return nil, err
	}
	matchers := make([]*domain.OrderMatcher, len(rows))
	for i := range rows {
		matchers[i] = rows[i].toDomain()
	}
	return matchers, nil
}

// UpdateStats persists a matcher's last-match-time and moving statistics
// after a cycle completes, via an explicit column map so zero-valued
// fields (e.g. a cycle that processed 0 orders) still overwrite the prior
// row instead of being skipped.
func (s *MatcherStore) UpdateStats(m *domain.OrderMatcher) error {
	return s.db.Model(&matcherRow{}).
		Where("symbol = ?", m.Symbol).
		Updates(map[string]interface{}{
			"last_match_time":        m.LastMatchTime,
			"total_orders_processed": m.Stats.TotalOrdersProcessed,
			"total_trades_generated": m.Stats.TotalTradesGenerated,
			"last_match_time_ms":     m.Stats.LastMatchTimeMs,
			"average_match_time_ms":  m.Stats.AverageMatchTimeMs,
		}).Error
}
