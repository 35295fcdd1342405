package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobStatus is a MatchJob's lifecycle state (spec §3: RUNNING -> {COMPLETED,
// FAILED} exactly once).
type JobStatus string

const (
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// MatchJob records one matching cycle for one symbol (spec §3, §4.2).
type MatchJob struct {
	ID          string
	Symbol      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      JobStatus

	OrdersProcessed  int
	TradesGenerated  int
	ProcessingTimeMs int64
	TotalVolume      decimal.Decimal

	TradeIDs     []string
	ErrorMessage string
}

// Complete marks the job COMPLETED with the given statistics.
func (j *MatchJob) Complete(ordersProcessed, tradesGenerated int, totalVolume decimal.Decimal, tradeIDs []string) {
	now := time.Now()
	j.CompletedAt = &now
	j.Status = JobCompleted
	j.OrdersProcessed = ordersProcessed
	j.TradesGenerated = tradesGenerated
	j.TotalVolume = totalVolume
	j.TradeIDs = tradeIDs
	j.ProcessingTimeMs = now.Sub(j.StartedAt).Milliseconds()
}

// Fail marks the job FAILED with the given error.
func (j *MatchJob) Fail(err error) {
	now := time.Now()
	j.CompletedAt = &now
	j.Status = JobFailed
	j.ErrorMessage = err.Error()
	j.ProcessingTimeMs = now.Sub(j.StartedAt).Milliseconds()
}
