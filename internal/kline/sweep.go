package kline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// Sweeper closes out kline buckets whose window has elapsed even when no
// trade arrives to trigger the fold (spec §4.4: idle symbols still need a
// final, closed candle). One ticker per interval, since each interval's
// close-out cadence is different; the teacher has no cron equivalent to
// ground this on, so it runs on a plain time.Ticker per interval rather
// than a cron expression.
type Sweeper struct {
	agg      *Aggregator
	logger   *zap.Logger
	symbols  func() []string
	stopChan chan struct{}
}

// NewSweeper builds a Sweeper over agg. symbols is called on every tick to
// get the current set of active symbols to sweep.
func NewSweeper(agg *Aggregator, symbols func() []string, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		agg:      agg,
		logger:   logger,
		symbols:  symbols,
		stopChan: make(chan struct{}),
	}
}

// Run starts one sweep goroutine per supported interval and blocks until
// ctx is canceled or Stop is called.
func (s *Sweeper) Run(ctx context.Context) {
	var tickers []*time.Ticker
	for _, interval := range domain.SupportedIntervals {
		period := sweepPeriod(interval)
		ticker := time.NewTicker(period)
		tickers = append(tickers, ticker)
		go s.sweepLoop(ctx, interval, ticker)
	}

	select {
	case <-ctx.Done():
	case <-s.stopChan:
	}
	for _, t := range tickers {
		t.Stop()
	}
}

// Stop signals all sweep loops to exit.
func (s *Sweeper) Stop() {
	close(s.stopChan)
}

func (s *Sweeper) sweepLoop(ctx context.Context, interval domain.Interval, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweepOnce(ctx, interval)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context, interval domain.Interval) {
	now := time.Now().UTC()
	for _, symbol := range s.symbols() {
		bucket := s.agg.CurrentBucket(symbol, interval)
		if bucket == nil {
			continue
		}
		if now.Before(bucket.CloseTime) {
			continue
		}
		// The bucket's window has elapsed; it is already persisted
		// as-of its last fold. CloseBucket flags it final and hands it
		// to the publisher — the next trade for this symbol opens a
		// fresh bucket via AlignBucket naturally.
		s.agg.CloseBucket(ctx, symbol, interval, now)
		s.logger.Debug("kline bucket closed by sweep",
			zap.String("symbol", symbol), zap.String("interval", string(interval)),
			zap.Time("closeTime", bucket.CloseTime))
	}
}

// sweepPeriod picks a sweep cadence proportional to the interval width, so
// a 1w candle isn't polled every second while a 1m candle is polled too
// rarely to close promptly.
func sweepPeriod(interval domain.Interval) time.Duration {
	switch interval {
	case domain.Interval1m:
		return 5 * time.Second
	case domain.Interval5m, domain.Interval15m, domain.Interval30m:
		return 30 * time.Second
	case domain.Interval1h, domain.Interval4h:
		return 5 * time.Minute
	default:
		return 30 * time.Minute
	}
}
