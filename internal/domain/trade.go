package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable execution between a buy and a sell order (spec §3).
// There is no legacy orderId alias (teacher's trade.orderId=sellerOrderId
// field is dropped per spec §9's explicit instruction) — only
// BuyerOrderID/SellerOrderID exist.
type Trade struct {
	ID     string
	Symbol string

	BuyerOrderID  string
	SellerOrderID string
	BuyerUserID   string
	SellerUserID  string

	Price    decimal.Decimal
	Quantity decimal.Decimal

	// IsBuyerMaker is true when the buyer's order was resting (the
	// earlier-arrived side) at the moment of the match. Computed from
	// arrival order, not hard-coded (spec §9 open question, resolved as
	// a redesign — see DESIGN.md).
	IsBuyerMaker bool

	CreatedAt time.Time
}

// QuoteVolume returns Price * Quantity in the decimal domain (spec §4.3
// "Monetary arithmetic": never binary floating point).
func (t *Trade) QuoteVolume() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}
