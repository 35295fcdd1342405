// Package stats computes the moving statistics tracked per OrderMatcher
// (spec §3: total-orders-processed, total-trades-generated,
// last-match-time-ms, average-match-time-ms), using gonum's stat package
// for the moving average rather than a hand-rolled accumulator.
package stats

import (
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/vantra-labs/matchcore/internal/domain"
)

const maxSamples = 500

// Tracker accumulates per-symbol matching cycle timings and folds them
// into a domain.OrderMatcher's moving statistics.
type Tracker struct {
	mu      sync.Mutex
	samples map[string][]float64
}

// NewTracker builds an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{samples: make(map[string][]float64)}
}

// RecordCycle records one matching cycle's duration for symbol and returns
// MatcherStats holding its LastMatchTimeMs and AverageMatchTimeMs only; the
// lifetime counters in the result are zero (CumulativeStats folds those).
func (t *Tracker) RecordCycle(symbol string, ordersProcessed, tradesGenerated int, durationMs int64) domain.MatcherStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := append(t.samples[symbol], float64(durationMs))
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	t.samples[symbol] = samples

	avg := stat.Mean(samples, nil)

	return domain.MatcherStats{
		LastMatchTimeMs:    durationMs,
		AverageMatchTimeMs: avg,
	}
}

// CumulativeStats folds a tracker's running average into an existing
// OrderMatcher's stats, incrementing its lifetime counters. Callers own
// persistence of the resulting OrderMatcher row.
func (t *Tracker) CumulativeStats(m *domain.OrderMatcher, ordersProcessed, tradesGenerated int, durationMs int64) {
	updated := t.RecordCycle(m.Symbol, ordersProcessed, tradesGenerated, durationMs)
	m.Stats.TotalOrdersProcessed += int64(ordersProcessed)
	m.Stats.TotalTradesGenerated += int64(tradesGenerated)
	m.Stats.LastMatchTimeMs = updated.LastMatchTimeMs
	m.Stats.AverageMatchTimeMs = updated.AverageMatchTimeMs
}
