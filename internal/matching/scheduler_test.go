package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// fakeOrderRepo is a minimal in-memory OrderRepo stand-in: every call
// succeeds with an empty book, so RunCycle always hits the empty-book
// short-circuit (spec §4.3 step 4). Sufficient to exercise the scheduler's
// dedup/fan-out logic without a real store.
type fakeOrderRepo struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeOrderRepo) GetActiveBuyOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	return nil, nil
}
func (f *fakeOrderRepo) GetActiveSellOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	return nil, nil
}
func (f *fakeOrderRepo) LockOrders(ctx context.Context, ids []string, jobID string, now time.Time) ([]string, error) {
	return ids, nil
}
func (f *fakeOrderRepo) UnlockOrders(ctx context.Context, ids []string) error { return nil }
func (f *fakeOrderRepo) UnlockTimedOutOrders(ctx context.Context, timeout time.Duration, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 0, nil
}
func (f *fakeOrderRepo) UpdateOrders(ctx context.Context, orders []*domain.Order, trades []*domain.Trade) error {
	return nil
}

type fakeJobRepo struct{}

func (fakeJobRepo) Create(ctx context.Context, job *domain.MatchJob) error { return nil }
func (fakeJobRepo) Update(ctx context.Context, job *domain.MatchJob) error { return nil }

type fixedMatchers struct {
	matchers []*domain.OrderMatcher
}

func (l fixedMatchers) ListActive() ([]*domain.OrderMatcher, error) {
	return l.matchers, nil
}

func matchersFor(symbols ...string) fixedMatchers {
	matchers := make([]*domain.OrderMatcher, len(symbols))
	for i, s := range symbols {
		matchers[i] = &domain.OrderMatcher{Symbol: s, IsActive: true, BatchSize: 100}
	}
	return fixedMatchers{matchers: matchers}
}

func newTestEngine(repo *fakeOrderRepo) *Engine {
	return NewEngine(repo, fakeJobRepo{}, nil, nil, EngineConfig{
		LockTimeout:        time.Minute,
		BatchSize:          100,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: time.Second,
	}, zap.NewNop())
}

func TestScheduler_TickRunsOneCyclePerSymbol(t *testing.T) {
	repo := &fakeOrderRepo{}
	engine := newTestEngine(repo)
	sched, err := NewScheduler(engine, matchersFor("A", "B"), time.Hour, 4, zap.NewNop())
	require.NoError(t, err)
	defer sched.pool.Release()

	sched.tick(context.Background())

	assert.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.calls == 2
	}, time.Second, 10*time.Millisecond)
}

func TestScheduler_SkipsSymbolAlreadyRunning(t *testing.T) {
	repo := &fakeOrderRepo{}
	engine := newTestEngine(repo)
	sched, err := NewScheduler(engine, matchersFor("A"), time.Hour, 1, zap.NewNop())
	require.NoError(t, err)
	defer sched.pool.Release()

	started := sched.tryStart("A")
	require.True(t, started)

	again := sched.tryStart("A")
	assert.False(t, again, "a symbol already in flight must not be started twice")

	sched.finish("A")
	assert.True(t, sched.tryStart("A"), "finish must release the symbol for the next tick")
}
