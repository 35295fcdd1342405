// Package domain defines the core trading entities matched and aggregated
// by matchcore: Order, Trade, MatchJob, OrderMatcher and Kline (spec §3).
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the tagged enum for an order's direction (spec §9: avoid
// polymorphism via subclassing, branch on the enum directly).
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Type is the order type. The core assumes LIMIT; MARKET is treated as a
// limit order priced at the caller-provided worst acceptable bound (spec §3).
type Type string

const (
	TypeLimit  Type = "LIMIT"
	TypeMarket Type = "MARKET"
)

// Status is an order's lifecycle state.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCanceled        Status = "CANCELED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// IsTerminal reports whether no further mutation of the order is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Order is a resting (or terminal) limit order, mutated only by the
// Matching Engine or an explicit user cancel (spec §3 "Lifecycles").
type Order struct {
	ID       string
	UserID   string
	Symbol   string
	Side     Side
	Type     Type
	Price    decimal.Decimal
	Original decimal.Decimal
	Executed decimal.Decimal
	Status   Status
	IsWorking bool

	IsLocked     bool
	LockedAt     *time.Time
	LockingJobID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Remaining returns Original - Executed.
func (o *Order) Remaining() decimal.Decimal {
	return o.Original.Sub(o.Executed)
}

// IsFilled reports whether the order's executed quantity reached its
// original quantity.
func (o *Order) IsFilled() bool {
	return o.Executed.GreaterThanOrEqual(o.Original)
}

// ApplyFill records an execution of qty against the order, advancing its
// status per spec §4.3's updateStatus(o): FILLED+isWorking=false when
// executed = original, else PARTIALLY_FILLED.
func (o *Order) ApplyFill(qty decimal.Decimal) {
	o.Executed = o.Executed.Add(qty)
	if o.IsFilled() {
		o.Status = StatusFilled
		o.IsWorking = false
	} else {
		o.Status = StatusPartiallyFilled
	}
	o.UpdatedAt = time.Now()
}

// Lock marks the order as owned by matching cycle jobID, for the duration
// of one matching cycle (spec §4.1 lockOrders).
func (o *Order) Lock(jobID string, at time.Time) {
	o.IsLocked = true
	o.LockedAt = &at
	o.LockingJobID = jobID
}

// Unlock clears the lock state unconditionally (spec §4.1 unlockOrders).
func (o *Order) Unlock() {
	o.IsLocked = false
	o.LockedAt = nil
	o.LockingJobID = ""
}

// CompareBuy implements the buy-book sort key: price descending, then
// created-at ascending, then id ascending (spec §4.3 "Determinism").
func CompareBuy(a, b *Order) bool {
	if !a.Price.Equal(b.Price) {
		return a.Price.GreaterThan(b.Price)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// CompareSell implements the sell-book sort key: price ascending, then
// created-at ascending, then id ascending.
func CompareSell(a, b *Order) bool {
	if !a.Price.Equal(b.Price) {
		return a.Price.LessThan(b.Price)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
