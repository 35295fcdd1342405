package matching

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// MatcherRepo is the slice of the per-symbol OrderMatcher store (spec §3,
// §6 "order_matchers") the scheduler needs: which symbols are currently
// active, and each one's own batch size — not a generic symbol list, since
// the scheduler must honor per-matcher configuration, not one process-wide
// default.
type MatcherRepo interface {
	ListActive() ([]*domain.OrderMatcher, error)
}

// Scheduler runs the Engine's cycle protocol for every active matcher on a
// fixed interval (spec §4.3 "Scheduler": "for each active matcher M").
// Per-symbol cycles are strictly sequential; distinct symbols run
// concurrently through a bounded worker pool, grounded on
// internal/architecture/fx/workerpool.WorkerPoolFactory's ants.Pool usage
// — simplified here to a single pool sized for cross-symbol fan-out, since
// the matching cycle never needs more than one pool.
type Scheduler struct {
	engine   *Engine
	matchers MatcherRepo
	interval time.Duration
	logger   *zap.Logger

	pool *ants.Pool

	mu      sync.Mutex
	running map[string]struct{}
}

// NewScheduler builds a Scheduler that submits cycles to a pool of
// poolSize workers.
func NewScheduler(engine *Engine, matchers MatcherRepo, interval time.Duration, poolSize int, logger *zap.Logger) (*Scheduler, error) {
	pool, err := ants.NewPool(poolSize, ants.WithPanicHandler(func(i interface{}) {
		logger.Error("matching cycle panicked", zap.Any("panic", i))
	}))
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		engine:   engine,
		matchers: matchers,
		interval: interval,
		logger:   logger,
		pool:     pool,
		running:  make(map[string]struct{}),
	}, nil
}

// Run blocks, invoking one scheduling tick every interval until ctx is
// canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.pool.Release()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick discovers active matchers and submits one cycle per matcher to the
// pool, using each matcher's own batch size, and skipping any symbol whose
// previous cycle is still in flight (a slow cycle must never overlap
// itself; spec §4.3 "within one process, the matching cycle for a single
// symbol is strictly sequential").
func (s *Scheduler) tick(ctx context.Context) {
	matchers, err := s.matchers.ListActive()
	if err != nil {
		s.logger.Error("failed to list active matchers", zap.Error(err))
		return
	}

	for _, matcher := range matchers {
		m := matcher
		if !s.tryStart(m.Symbol) {
			continue
		}

		err := s.pool.Submit(func() {
			defer s.finish(m.Symbol)
			s.engine.RunCycle(ctx, m)
		})
		if err != nil {
			s.logger.Warn("failed to submit matching cycle", zap.String("symbol", m.Symbol), zap.Error(err))
			s.finish(m.Symbol)
		}
	}
}

func (s *Scheduler) tryStart(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[symbol]; ok {
		return false
	}
	s.running[symbol] = struct{}{}
	return true
}

func (s *Scheduler) finish(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, symbol)
}
