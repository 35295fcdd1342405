package domain

import "time"

// OrderMatcher is the per-symbol matching configuration and moving
// statistics (spec §3).
type OrderMatcher struct {
	Symbol       string
	IsActive     bool
	BatchSize    int
	LastMatchTime time.Time

	Stats MatcherStats
}

// MatcherStats holds the moving statistics spec §3 names.
type MatcherStats struct {
	TotalOrdersProcessed int64
	TotalTradesGenerated int64
	LastMatchTimeMs      int64
	AverageMatchTimeMs   float64
}
