package matching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// statefulOrderRepo is a full in-memory OrderRepo: it holds an actual book
// per symbol and records every call's arguments, so tests can drive a
// populated, crossing book through the complete 9-step cycle instead of
// only the empty-book short-circuit (fakeOrderRepo in scheduler_test.go).
type statefulOrderRepo struct {
	mu sync.Mutex

	orders map[string]*domain.Order // by id
	locked map[string]string        // id -> job id

	lockCalls      [][]string
	unlockCalls    [][]string
	updateCalls    int
	lastUpdated    []*domain.Order
	lastTrades     []*domain.Trade
	denyLock       map[string]bool // ids that LockOrders must refuse
	updateOrdersFn func([]*domain.Order, []*domain.Trade) error
}

func newStatefulOrderRepo(orders ...*domain.Order) *statefulOrderRepo {
	byID := make(map[string]*domain.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	return &statefulOrderRepo{
		orders:   byID,
		locked:   make(map[string]string),
		denyLock: make(map[string]bool),
	}
}

func (r *statefulOrderRepo) GetActiveBuyOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	return r.activeBySide(symbol, domain.SideBuy), nil
}

func (r *statefulOrderRepo) GetActiveSellOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	return r.activeBySide(symbol, domain.SideSell), nil
}

func (r *statefulOrderRepo) activeBySide(symbol string, side domain.Side) []*domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Order
	for _, o := range r.orders {
		if o.Symbol == symbol && o.Side == side && o.IsWorking && !o.IsLocked {
			out = append(out, o)
		}
	}
	less := domain.CompareBuy
	if side == domain.SideSell {
		less = domain.CompareSell
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (r *statefulOrderRepo) LockOrders(ctx context.Context, ids []string, jobID string, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lockCalls = append(r.lockCalls, append([]string{}, ids...))

	var granted []string
	for _, id := range ids {
		if r.denyLock[id] {
			continue
		}
		o, ok := r.orders[id]
		if !ok || o.IsLocked {
			continue
		}
		o.IsLocked = true
		o.LockingJobID = jobID
		r.locked[id] = jobID
		granted = append(granted, id)
	}
	return granted, nil
}

func (r *statefulOrderRepo) UnlockOrders(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unlockCalls = append(r.unlockCalls, append([]string{}, ids...))
	for _, id := range ids {
		if o, ok := r.orders[id]; ok {
			o.IsLocked = false
			o.LockingJobID = ""
		}
		delete(r.locked, id)
	}
	return nil
}

func (r *statefulOrderRepo) UnlockTimedOutOrders(ctx context.Context, timeout time.Duration, now time.Time) (int64, error) {
	return 0, nil
}

func (r *statefulOrderRepo) UpdateOrders(ctx context.Context, orders []*domain.Order, trades []*domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.updateCalls++
	r.lastUpdated = orders
	r.lastTrades = trades

	if r.updateOrdersFn != nil {
		if err := r.updateOrdersFn(orders, trades); err != nil {
			return err
		}
	}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return nil
}

// recordingJobRepo captures every MatchJob passed to Create/Update so tests
// can assert on the job's final state.
type recordingJobRepo struct {
	mu      sync.Mutex
	created []*domain.MatchJob
	updated []*domain.MatchJob
}

func (r *recordingJobRepo) Create(ctx context.Context, job *domain.MatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, job)
	return nil
}

func (r *recordingJobRepo) Update(ctx context.Context, job *domain.MatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, job)
	return nil
}

func (r *recordingJobRepo) lastUpdate() *domain.MatchJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updated) == 0 {
		return nil
	}
	return r.updated[len(r.updated)-1]
}

func limitOrder(id, symbol string, side domain.Side, price, qty string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		ID:        id,
		UserID:    "user-" + id,
		Symbol:    symbol,
		Side:      side,
		Type:      domain.TypeLimit,
		Price:     decimal.RequireFromString(price),
		Original:  decimal.RequireFromString(qty),
		Status:    domain.StatusNew,
		IsWorking: true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func newCrossingEngine(repo *statefulOrderRepo, jobs *recordingJobRepo) *Engine {
	return NewEngine(repo, jobs, nil, nil, EngineConfig{
		LockTimeout:        time.Minute,
		BatchSize:          100,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: time.Second,
	}, zap.NewNop())
}

func TestRunCycle_CrossingBookMatchesLocksAndUnlocks(t *testing.T) {
	now := time.Now()
	buy := limitOrder("buy-1", "BTCUSD", domain.SideBuy, "100", "2", now)
	sell := limitOrder("sell-1", "BTCUSD", domain.SideSell, "99", "2", now.Add(time.Millisecond))

	repo := newStatefulOrderRepo(buy, sell)
	jobs := &recordingJobRepo{}
	engine := newCrossingEngine(repo, jobs)

	engine.RunCycle(context.Background(), &domain.OrderMatcher{Symbol: "BTCUSD", IsActive: true, BatchSize: 100})

	require.Len(t, repo.lockCalls, 1)
	assert.ElementsMatch(t, []string{"buy-1", "sell-1"}, repo.lockCalls[0])

	require.Equal(t, 1, repo.updateCalls)
	require.Len(t, repo.lastTrades, 1)
	assert.True(t, repo.lastTrades[0].Quantity.Equal(decimal.RequireFromString("2")))
	assert.True(t, repo.lastTrades[0].Price.Equal(decimal.RequireFromString("99")), "execution price must be the resting sell's price")

	require.Len(t, repo.unlockCalls, 1, "unlock must run exactly once, from the deferred finalizer")
	assert.ElementsMatch(t, []string{"buy-1", "sell-1"}, repo.unlockCalls[0])

	job := jobs.lastUpdate()
	require.NotNil(t, job)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 2, job.OrdersProcessed)
	assert.Equal(t, 1, job.TradesGenerated)

	assert.Equal(t, domain.StatusFilled, buy.Status)
	assert.False(t, buy.IsWorking)
	assert.Equal(t, domain.StatusFilled, sell.Status)
	assert.False(t, sell.IsWorking)

	assert.False(t, buy.IsLocked, "unlock must clear the in-memory lock flag too")
	assert.False(t, sell.IsLocked)
}

func TestRunCycle_PartialLockExcludesOrderFromThisCycle(t *testing.T) {
	now := time.Now()
	buy := limitOrder("buy-1", "ETHUSD", domain.SideBuy, "50", "1", now)
	sell := limitOrder("sell-1", "ETHUSD", domain.SideSell, "49", "1", now.Add(time.Millisecond))

	repo := newStatefulOrderRepo(buy, sell)
	repo.denyLock["sell-1"] = true // simulate another cycle winning the race for sell-1
	jobs := &recordingJobRepo{}
	engine := newCrossingEngine(repo, jobs)

	engine.RunCycle(context.Background(), &domain.OrderMatcher{Symbol: "ETHUSD", IsActive: true, BatchSize: 100})

	assert.Zero(t, repo.updateCalls, "a one-sided remaining book must not match")
	require.Len(t, repo.unlockCalls, 1, "unlock must still run for every requested id, including the refused one")
	assert.ElementsMatch(t, []string{"buy-1", "sell-1"}, repo.unlockCalls[0])

	job := jobs.lastUpdate()
	require.NotNil(t, job)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 0, job.TradesGenerated)

	assert.Equal(t, domain.StatusNew, buy.Status, "buy-1 was locked but never matched, so its status is untouched")
}

func TestRunCycle_StoreFailureFailsJobButStillUnlocks(t *testing.T) {
	now := time.Now()
	buy := limitOrder("buy-1", "BTCUSD", domain.SideBuy, "100", "1", now)
	sell := limitOrder("sell-1", "BTCUSD", domain.SideSell, "99", "1", now.Add(time.Millisecond))

	repo := newStatefulOrderRepo(buy, sell)
	repo.updateOrdersFn = func(orders []*domain.Order, trades []*domain.Trade) error {
		return errors.New("connection reset")
	}
	jobs := &recordingJobRepo{}
	engine := newCrossingEngine(repo, jobs)

	engine.RunCycle(context.Background(), &domain.OrderMatcher{Symbol: "BTCUSD", IsActive: true, BatchSize: 100})

	require.Len(t, repo.unlockCalls, 1, "the deferred unlock must run even when persistence fails")

	job := jobs.lastUpdate()
	require.NotNil(t, job)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.NotEmpty(t, job.ErrorMessage)
}

func TestRunCycle_EmptyBookShortCircuitsWithoutLocking(t *testing.T) {
	repo := newStatefulOrderRepo()
	jobs := &recordingJobRepo{}
	engine := newCrossingEngine(repo, jobs)

	engine.RunCycle(context.Background(), &domain.OrderMatcher{Symbol: "BTCUSD", IsActive: true, BatchSize: 100})

	assert.Empty(t, repo.lockCalls)
	assert.Empty(t, repo.unlockCalls)

	job := jobs.lastUpdate()
	require.NotNil(t, job)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 0, job.OrdersProcessed)
}

func TestRunCycle_MatcherBatchSizeCapsBookPerSide(t *testing.T) {
	now := time.Now()
	buy1 := limitOrder("buy-1", "BTCUSD", domain.SideBuy, "100", "1", now)
	buy2 := limitOrder("buy-2", "BTCUSD", domain.SideBuy, "100", "1", now.Add(time.Millisecond))
	sell := limitOrder("sell-1", "BTCUSD", domain.SideSell, "90", "5", now.Add(2*time.Millisecond))

	repo := newStatefulOrderRepo(buy1, buy2, sell)
	jobs := &recordingJobRepo{}
	engine := newCrossingEngine(repo, jobs)

	engine.RunCycle(context.Background(), &domain.OrderMatcher{Symbol: "BTCUSD", IsActive: true, BatchSize: 1})

	require.Len(t, repo.lockCalls, 1)
	assert.ElementsMatch(t, []string{"buy-1", "sell-1"}, repo.lockCalls[0], "batch size 1 admits only the earliest buy into this cycle")
}
