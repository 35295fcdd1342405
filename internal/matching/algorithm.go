// Package matching implements the Matching Engine (C3): a deterministic,
// in-memory price-time-priority matcher run once per symbol per cycle
// (spec §4.3), plus the scheduler and crash-recovery machinery around it.
//
// The core matching loop is grounded on
// internal/trading/order_matching.Engine's matchOrder/canMatch/executeMatch
// shape, adapted from a live heap-based engine to a batch cycle over
// pre-sorted, pre-locked order slices, and from float64 to decimal.
package matching

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// Result is the outcome of one matching cycle: the trades generated and
// every order whose state changed (fills, status transitions).
type Result struct {
	Trades         []*domain.Trade
	ChangedOrders  []*domain.Order
	TradeIDs       []string
	TotalVolume    decimal.Decimal
}

// Match runs one deterministic matching cycle over buys and sells, which
// must already be sorted by domain.CompareBuy / domain.CompareSell (price,
// then created-at, then id — spec §4.3 "Determinism"). It mutates the
// orders in place (executed quantity, status) and returns every order that
// changed plus the trades generated.
//
// canMatch (buy.Price >= sell.Price) and the execution price convention
// (the resting order's price — here always the sell side's price, since a
// crossed market always has the sell resting on one side or the other
// depending on which order arrived first; spec §9 fixes this to the
// resting-sell's price regardless of which side is the incoming order)
// follow spec §4.3 exactly.
func Match(buys, sells []*domain.Order) Result {
	result := Result{TotalVolume: decimal.Zero}

	changed := make(map[string]*domain.Order)

	bi, si := 0, 0
	for bi < len(buys) && si < len(sells) {
		buy := buys[bi]
		sell := sells[si]

		if buy.Remaining().LessThanOrEqual(decimal.Zero) {
			bi++
			continue
		}
		if sell.Remaining().LessThanOrEqual(decimal.Zero) {
			si++
			continue
		}

		if !canMatch(buy, sell) {
			break
		}

		trade := executeMatch(buy, sell)
		result.Trades = append(result.Trades, trade)
		result.TradeIDs = append(result.TradeIDs, trade.ID)
		result.TotalVolume = result.TotalVolume.Add(trade.Quantity)

		changed[buy.ID] = buy
		changed[sell.ID] = sell

		if buy.Remaining().LessThanOrEqual(decimal.Zero) {
			bi++
		}
		if sell.Remaining().LessThanOrEqual(decimal.Zero) {
			si++
		}
	}

	for _, o := range changed {
		result.ChangedOrders = append(result.ChangedOrders, o)
	}
	return result
}

// canMatch reports whether a resting buy can cross a resting sell: the
// book only ever holds limit orders (a MARKET order is admitted already
// priced at its caller-supplied worst acceptable bound, per domain.Type's
// doc comment), so the crossing rule is uniform: buy.Price >= sell.Price.
func canMatch(buy, sell *domain.Order) bool {
	return buy.Price.GreaterThanOrEqual(sell.Price)
}

// executeMatch fills both orders by min(buy.Remaining, sell.Remaining) at
// the resting sell's price and returns the resulting trade.
func executeMatch(buy, sell *domain.Order) *domain.Trade {
	qty := buy.Remaining()
	if sell.Remaining().LessThan(qty) {
		qty = sell.Remaining()
	}

	price := sell.Price

	isBuyerMaker := buy.CreatedAt.Before(sell.CreatedAt) ||
		(buy.CreatedAt.Equal(sell.CreatedAt) && buy.ID < sell.ID)

	buy.ApplyFill(qty)
	sell.ApplyFill(qty)

	return &domain.Trade{
		ID:            uuid.New().String(),
		Symbol:        buy.Symbol,
		BuyerOrderID:  buy.ID,
		SellerOrderID: sell.ID,
		BuyerUserID:   buy.UserID,
		SellerUserID:  sell.UserID,
		Price:         price,
		Quantity:      qty,
		IsBuyerMaker:  isBuyerMaker,
		CreatedAt:     time.Now(),
	}
}
