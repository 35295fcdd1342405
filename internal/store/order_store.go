package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// OrderStore is the C1 Order Store: gorm/postgres-backed, grounded on
// internal/db/repositories/orderRepository.go's repository shape.
type OrderStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewOrderStore wires an OrderStore over an already-connected gorm handle.
func NewOrderStore(db *gorm.DB, logger *zap.Logger) *OrderStore {
	return &OrderStore{db: db, logger: logger}
}

// Migrate runs gorm auto-migration for the order/trade tables.
func (s *OrderStore) Migrate() error {
	return s.db.AutoMigrate(&orderRow{}, &tradeRow{})
}

// GetActiveBuyOrders returns working, unlocked BUY orders for symbol,
// ordered by the book's price-time priority (spec §4.1).
func (s *OrderStore) GetActiveBuyOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	return s.getActiveOrders(ctx, symbol, domain.SideBuy)
}

// GetActiveSellOrders returns working, unlocked SELL orders for symbol.
func (s *OrderStore) GetActiveSellOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	return s.getActiveOrders(ctx, symbol, domain.SideSell)
}

func (s *OrderStore) getActiveOrders(ctx context.Context, symbol string, side domain.Side) ([]*domain.Order, error) {
	var rows []orderRow
	result := s.db.WithContext(ctx).
		Where("symbol = ? AND side = ? AND is_working = ? AND is_locked = ?", symbol, string(side), true, false).
		Order("created_at ASC").
		Find(&rows)
	if result.Error != nil {
		s.logger.Error("get active orders failed", zap.Error(result.Error), zap.String("symbol", symbol), zap.String("side", string(side)))
		return nil, result.Error
	}

	orders := make([]*domain.Order, len(rows))
	for i := range rows {
		orders[i] = rows[i].toDomain()
	}
	if side == domain.SideBuy {
		sortOrders(orders, domain.CompareBuy)
	} else {
		sortOrders(orders, domain.CompareSell)
	}
	return orders, nil
}

func sortOrders(orders []*domain.Order, less func(a, b *domain.Order) bool) {
	for i := 1; i < len(orders); i++ {
		for j := i; j > 0 && less(orders[j], orders[j-1]); j-- {
			orders[j], orders[j-1] = orders[j-1], orders[j]
		}
	}
}

// LockOrders attempts to acquire the matching-cycle lock on every order id
// in ids, by jobID, as a single conditional UPDATE (spec §4.1 lockOrders:
// "a single conditional UPDATE ... the number of rows actually updated is
// the source of truth, not the caller's assumption"). Returns the ids that
// were actually locked; a caller that gets back fewer ids than requested
// must re-read before retrying.
func (s *OrderStore) LockOrders(ctx context.Context, ids []string, jobID string, now time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	result := s.db.WithContext(ctx).
		Model(&orderRow{}).
		Where("id IN ? AND is_locked = ?", ids, false).
		Updates(map[string]interface{}{
			"is_locked":      true,
			"locked_at":      now,
			"locking_job_id": jobID,
		})
	if result.Error != nil {
		s.logger.Error("lock orders failed", zap.Error(result.Error), zap.String("job_id", jobID))
		return nil, result.Error
	}

	var locked []orderRow
	if err := s.db.WithContext(ctx).
		Select("id").
		Where("id IN ? AND locking_job_id = ?", ids, jobID).
		Find(&locked).Error; err != nil {
		return nil, err
	}

	lockedIDs := make([]string, len(locked))
	for i, r := range locked {
		lockedIDs[i] = r.ID
	}
	return lockedIDs, nil
}

// UnlockOrders releases the lock on ids unconditionally (spec §4.1
// unlockOrders, called from the matching cycle's finally-block).
func (s *OrderStore) UnlockOrders(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	result := s.db.WithContext(ctx).
		Model(&orderRow{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"is_locked":      false,
			"locked_at":      nil,
			"locking_job_id": "",
		})
	return result.Error
}

// UnlockTimedOutOrders releases the lock on any order whose lock age
// exceeds timeout, recovering from a crashed matching cycle that never
// reached its unlock step (spec §4.1, §4.3 "Crash recovery").
func (s *OrderStore) UnlockTimedOutOrders(ctx context.Context, timeout time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-timeout)
	result := s.db.WithContext(ctx).
		Model(&orderRow{}).
		Where("is_locked = ? AND locked_at < ?", true, cutoff).
		Updates(map[string]interface{}{
			"is_locked":      false,
			"locked_at":      nil,
			"locking_job_id": "",
		})
	if result.Error != nil {
		s.logger.Error("unlock timed out orders failed", zap.Error(result.Error))
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// UpdateOrders persists the mutated state (status/executed/working/lock)
// of a batch of orders and inserts their generated trades atomically (spec
// §4.1 invariant: fills and trades commit together).
func (s *OrderStore) UpdateOrders(ctx context.Context, orders []*domain.Order, trades []*domain.Trade) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range orders {
			row := fromDomainOrder(o)
			// Select("*") forces every column, including zero-valued ones
			// (is_working false, executed_qty back to its prior value never
			// happens, but is_working true->false and locking_job_id
			// clearing both are zero values gorm's struct Updates would
			// otherwise silently skip).
			if err := tx.Model(&orderRow{}).Where("id = ?", row.ID).Select("*").Updates(row).Error; err != nil {
				s.logger.Error("update order failed", zap.Error(err), zap.String("order_id", row.ID))
				return err
			}
		}
		for _, t := range trades {
			if err := tx.Create(fromDomainTrade(t)).Error; err != nil {
				s.logger.Error("insert trade failed", zap.Error(err), zap.String("trade_id", t.ID))
				return err
			}
		}
		return nil
	})
}

// CreateOrder inserts a new order (spec §6 createOrder, post-validation).
func (s *OrderStore) CreateOrder(ctx context.Context, o *domain.Order) error {
	result := s.db.WithContext(ctx).Create(fromDomainOrder(o))
	if result.Error != nil {
		s.logger.Error("create order failed", zap.Error(result.Error), zap.String("order_id", o.ID))
		return result.Error
	}
	return nil
}

// GetOrder fetches one order by id. Returns (nil, nil) on not-found.
func (s *OrderStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var row orderRow
	result := s.db.WithContext(ctx).First(&row, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.logger.Error("get order failed", zap.Error(result.Error), zap.String("order_id", id))
		return nil, result.Error
	}
	return row.toDomain(), nil
}

// GetOpenOrders returns a user's open (non-terminal) orders for a symbol,
// or all symbols when symbol is empty (spec §6 getOpenOrders).
func (s *OrderStore) GetOpenOrders(ctx context.Context, userID, symbol string) ([]*domain.Order, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []string{string(domain.StatusNew), string(domain.StatusPartiallyFilled)})
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}

	var rows []orderRow
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		s.logger.Error("get open orders failed", zap.Error(err), zap.String("user_id", userID))
		return nil, err
	}
	orders := make([]*domain.Order, len(rows))
	for i := range rows {
		orders[i] = rows[i].toDomain()
	}
	return orders, nil
}

// GetOrderHistory returns a user's terminal orders for a symbol, most
// recent first, bounded by limit (spec §6 getOrderHistory).
func (s *OrderStore) GetOrderHistory(ctx context.Context, userID, symbol string, limit int) ([]*domain.Order, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []string{
			string(domain.StatusFilled), string(domain.StatusCanceled),
			string(domain.StatusRejected), string(domain.StatusExpired),
		})
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if limit <= 0 {
		limit = 100
	}

	var rows []orderRow
	if err := q.Order("updated_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		s.logger.Error("get order history failed", zap.Error(err), zap.String("user_id", userID))
		return nil, err
	}
	orders := make([]*domain.Order, len(rows))
	for i := range rows {
		orders[i] = rows[i].toDomain()
	}
	return orders, nil
}

// CancelOrder marks an order CANCELED if it is not locked and not
// terminal, as a single conditional UPDATE (spec §6 cancelOrder). It
// returns false, with no error, when no row matched — for example while
// the order is owned by a matching cycle; intake's RetryWaiter turns
// repeated false results into ErrLockContention.
func (s *OrderStore) CancelOrder(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&orderRow{}).
		Where("id = ? AND is_locked = ? AND status IN ?", id, false,
			[]string{string(domain.StatusNew), string(domain.StatusPartiallyFilled)}).
		Updates(map[string]interface{}{
			"status":     string(domain.StatusCanceled),
			"is_working": false,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		s.logger.Error("cancel order failed", zap.Error(result.Error), zap.String("order_id", id))
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListSymbols returns the distinct set of symbols with at least one
// working order, used by cmd/matchengine to bootstrap OrderMatcher rows
// and to feed the kline sweeper its symbol list.
func (s *OrderStore) ListSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := s.db.WithContext(ctx).
		Model(&orderRow{}).
		Where("is_working = ?", true).
		Distinct("symbol").
		Pluck("symbol", &symbols).Error
	return symbols, err
}
