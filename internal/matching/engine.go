package matching

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vantra-labs/matchcore/internal/domain"
	coreerrors "github.com/vantra-labs/matchcore/internal/errors"
	"github.com/vantra-labs/matchcore/internal/publish"
	"github.com/vantra-labs/matchcore/internal/stats"
)

// OrderRepo is the slice of the Order Store (C1) one matching cycle needs.
// Kept as an interface local to this package so matching never depends on
// the concrete gorm adapter (spec §9: "per-entity concrete store, loosely
// coupled through narrow interfaces").
type OrderRepo interface {
	GetActiveBuyOrders(ctx context.Context, symbol string) ([]*domain.Order, error)
	GetActiveSellOrders(ctx context.Context, symbol string) ([]*domain.Order, error)
	LockOrders(ctx context.Context, ids []string, jobID string, now time.Time) ([]string, error)
	UnlockOrders(ctx context.Context, ids []string) error
	UnlockTimedOutOrders(ctx context.Context, timeout time.Duration, now time.Time) (int64, error)
	UpdateOrders(ctx context.Context, orders []*domain.Order, trades []*domain.Trade) error
}

// JobRepo is the slice of the Match Job Ledger (C2) one matching cycle needs.
type JobRepo interface {
	Create(ctx context.Context, job *domain.MatchJob) error
	Update(ctx context.Context, job *domain.MatchJob) error
}

// MatcherStatsRepo is the slice of the OrderMatcher store one matching
// cycle needs to persist its moving statistics back to (spec §3).
type MatcherStatsRepo interface {
	UpdateStats(m *domain.OrderMatcher) error
}

// Engine runs one matching cycle at a time for a single symbol, per the
// 9-step cycle protocol (spec §4.3).
type Engine struct {
	orders    OrderRepo
	jobs      JobRepo
	matchers  MatcherStatsRepo
	publisher publish.Publisher
	logger    *zap.Logger
	breaker   *gobreaker.CircuitBreaker
	tracker   *stats.Tracker

	lockTimeout time.Duration
	batchSize   int
}

// EngineConfig carries the per-process tunables the cycle protocol reads
// from internal/config.MatchingConfig.
type EngineConfig struct {
	LockTimeout        time.Duration
	BatchSize          int
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// NewEngine wires an Engine over orders/jobs/matchers/publisher, wrapping
// every Order Store call in a circuit breaker; Match Job Ledger and
// matcher-stats calls are not wrapped (spec §4.3's TransientStoreError
// handling; grounded on the teacher's sony/gobreaker usage elsewhere in
// the repo's resilience packages). matchers may be nil, in which case a
// cycle's moving statistics are computed but never persisted (used by
// tests that don't care about the OrderMatcher row).
func NewEngine(orders OrderRepo, jobs JobRepo, matchers MatcherStatsRepo, publisher publish.Publisher, cfg EngineConfig, logger *zap.Logger) *Engine {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "order-store",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
	})

	return &Engine{
		orders:      orders,
		jobs:        jobs,
		matchers:    matchers,
		publisher:   publisher,
		logger:      logger,
		breaker:     breaker,
		tracker:     stats.NewTracker(),
		lockTimeout: cfg.LockTimeout,
		batchSize:   cfg.BatchSize,
	}
}

// RunCycle executes one matching cycle for matcher M, following the 9-step
// protocol (spec §4.3 "for each active matcher M"). It never returns an
// error that should stop the scheduler — failures are recorded on the
// MatchJob and logged; the scheduler simply moves on to the next symbol.
func (e *Engine) RunCycle(ctx context.Context, m *domain.OrderMatcher) {
	symbol := m.Symbol
	start := time.Now()

	batchSize := m.BatchSize
	if batchSize <= 0 {
		batchSize = e.batchSize
	}

	// Step 1: recovery sweep.
	if _, err := e.callStore(func() (interface{}, error) {
		return e.orders.UnlockTimedOutOrders(ctx, e.lockTimeout, time.Now())
	}); err != nil {
		e.logger.Warn("recovery sweep failed", zap.String("symbol", symbol), zap.Error(err))
	}

	// Step 2: open the MatchJob.
	job := &domain.MatchJob{
		ID:        ksuid.New().String(),
		Symbol:    symbol,
		StartedAt: time.Now(),
		Status:    domain.JobRunning,
	}
	if err := e.jobs.Create(ctx, job); err != nil {
		e.logger.Error("failed to open match job", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	// Step 3: read active books.
	buysRaw, err := e.callStore(func() (interface{}, error) {
		return e.orders.GetActiveBuyOrders(ctx, symbol)
	})
	if err != nil {
		e.failJob(ctx, job, coreerrors.Wrap(err, coreerrors.ErrTransientStore, "read buy book"))
		return
	}
	sellsRaw, err := e.callStore(func() (interface{}, error) {
		return e.orders.GetActiveSellOrders(ctx, symbol)
	})
	if err != nil {
		e.failJob(ctx, job, coreerrors.Wrap(err, coreerrors.ErrTransientStore, "read sell book"))
		return
	}

	buys := buysRaw.([]*domain.Order)
	sells := sellsRaw.([]*domain.Order)

	buys = capBatch(buys, batchSize)
	sells = capBatch(sells, batchSize)

	// Step 4: empty book short-circuit.
	if len(buys) == 0 || len(sells) == 0 {
		job.Complete(0, 0, decimal.Zero, nil)
		if err := e.jobs.Update(ctx, job); err != nil {
			e.logger.Error("failed to close empty match job", zap.String("symbol", symbol), zap.Error(err))
		}
		e.recordStats(m, start, 0, 0)
		return
	}

	all := append(append([]*domain.Order{}, buys...), sells...)
	allIDs := orderIDs(all)

	// Step 5: lock.
	lockedRaw, err := e.callStore(func() (interface{}, error) {
		return e.orders.LockOrders(ctx, allIDs, job.ID, time.Now())
	})
	if err != nil {
		e.failJob(ctx, job, coreerrors.Wrap(err, coreerrors.ErrTransientStore, "lock orders"))
		return
	}
	locked := lockedRaw.([]string)

	// Step 9 (deferred): always unlock, success or failure.
	defer func() {
		if _, err := e.callStore(func() (interface{}, error) {
			return nil, e.orders.UnlockOrders(context.Background(), allIDs)
		}); err != nil {
			e.logger.Error("failed to unlock orders after cycle", zap.String("symbol", symbol), zap.String("job_id", job.ID), zap.Error(err))
		}
	}()

	buys, sells = filterLocked(buys, sells, locked)
	if len(buys) == 0 || len(sells) == 0 {
		job.Complete(0, 0, decimal.Zero, nil)
		e.jobs.Update(ctx, job)
		e.recordStats(m, start, 0, 0)
		return
	}

	// Step 6: in-memory match.
	result := Match(buys, sells)

	// Step 7: persist.
	if len(result.Trades) > 0 {
		if _, err := e.callStore(func() (interface{}, error) {
			return nil, e.orders.UpdateOrders(ctx, result.ChangedOrders, result.Trades)
		}); err != nil {
			e.failJob(ctx, job, coreerrors.Wrap(err, coreerrors.ErrTransientStore, "persist match results"))
			return
		}
	}

	// Step 8: close the job.
	job.Complete(len(locked), len(result.Trades), result.TotalVolume, result.TradeIDs)
	if err := e.jobs.Update(ctx, job); err != nil {
		e.logger.Error("failed to close match job", zap.String("symbol", symbol), zap.Error(err))
	}

	e.recordStats(m, start, len(locked), len(result.Trades))
	e.publishResults(ctx, symbol, result)
}

// recordStats folds this cycle's outcome into the matcher's moving
// statistics (spec §3) and persists the updated row, best-effort — a
// failure to persist stats never fails the cycle itself.
func (e *Engine) recordStats(m *domain.OrderMatcher, start time.Time, ordersProcessed, tradesGenerated int) {
	m.LastMatchTime = start
	durationMs := time.Since(start).Milliseconds()
	e.tracker.CumulativeStats(m, ordersProcessed, tradesGenerated, durationMs)

	if e.matchers == nil {
		return
	}
	if err := e.matchers.UpdateStats(m); err != nil {
		e.logger.Warn("failed to persist matcher stats", zap.String("symbol", m.Symbol), zap.Error(err))
	}
}

func (e *Engine) failJob(ctx context.Context, job *domain.MatchJob, err error) {
	job.Fail(err)
	if uerr := e.jobs.Update(ctx, job); uerr != nil {
		e.logger.Error("failed to mark match job failed", zap.String("job_id", job.ID), zap.Error(uerr))
	}
	e.logger.Error("matching cycle failed", zap.String("symbol", job.Symbol), zap.String("job_id", job.ID), zap.Error(err))
}

// callStore routes a single datastore call through the circuit breaker.
func (e *Engine) callStore(fn func() (interface{}, error)) (interface{}, error) {
	return e.breaker.Execute(fn)
}

func (e *Engine) publishResults(ctx context.Context, symbol string, result Result) {
	if e.publisher == nil {
		return
	}
	for _, t := range result.Trades {
		if err := e.publisher.PublishTrade(ctx, symbol, publish.TradeToSnapshot(t)); err != nil {
			e.logger.Warn("trade publish failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	for _, o := range result.ChangedOrders {
		if err := e.publisher.PublishUserDataUpdate(ctx, o.UserID, publish.UserDataOrderUpdate, publish.OrderToSnapshot(o)); err != nil {
			e.logger.Warn("order update publish failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func capBatch(orders []*domain.Order, batchSize int) []*domain.Order {
	if batchSize > 0 && len(orders) > batchSize {
		return orders[:batchSize]
	}
	return orders
}

func orderIDs(orders []*domain.Order) []string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}

// filterLocked drops any order the store did not actually lock for this
// cycle (spec §4.3 step 5: "such rows must not be matched in this cycle").
func filterLocked(buys, sells []*domain.Order, locked []string) ([]*domain.Order, []*domain.Order) {
	lockedSet := make(map[string]struct{}, len(locked))
	for _, id := range locked {
		lockedSet[id] = struct{}{}
	}

	filter := func(orders []*domain.Order) []*domain.Order {
		out := make([]*domain.Order, 0, len(orders))
		for _, o := range orders {
			if _, ok := lockedSet[o.ID]; ok {
				out = append(out, o)
			}
		}
		return out
	}
	return filter(buys), filter(sells)
}
