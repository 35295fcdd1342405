// Package publish implements the Event Publisher (C5): a thin sink for
// outbound depth, trade and kline updates to downstream subscribers (spec
// §4.5). The core depends only on the Publisher interface; delivery is
// best-effort and a publish failure must never roll back a matching cycle
// or a kline fold.
package publish

import (
	"context"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// TradeSnapshot is the wire shape of a `trade.<symbol>` event (spec §6).
type TradeSnapshot struct {
	ID           string `json:"id"`
	Symbol       string `json:"symbol"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	Time         int64  `json:"time"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

// KlineSnapshot is the wire shape of a `kline.<symbol>.<interval>` event.
// Final distinguishes the closing publication the sweep emits once a
// bucket's window has fully elapsed (spec §4.4: "flag it as final") from
// the many in-progress updates folded in as trades arrive.
type KlineSnapshot struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	OpenTime   int64  `json:"openTime"`
	CloseTime  int64  `json:"closeTime"`
	Open       string `json:"open"`
	High       string `json:"high"`
	Low        string `json:"low"`
	Close      string `json:"close"`
	Volume     string `json:"volume"`
	TradeCount int    `json:"tradeCount"`
	Final      bool   `json:"final"`
}

// OrderUpdateSnapshot is the wire shape of a `userData.<userId>` order
// update event.
type OrderUpdateSnapshot struct {
	ID           string `json:"id"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	OriginalQty  string `json:"originalQty"`
	ExecutedQty  string `json:"executedQty"`
	Status       string `json:"status"`
	Price        string `json:"price"`
	UpdateTimeMs int64  `json:"updateTime"`
}

// DepthLevel is one price level of a depth delta.
type DepthLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// UserDataEventType enumerates the userData event kinds the core emits.
type UserDataEventType string

const (
	UserDataOrderUpdate UserDataEventType = "orderUpdate"
)

// Publisher is the full C5 interface (spec §4.5). It is consumed by C3 and
// C4; no other component depends on it directly.
type Publisher interface {
	PublishTrade(ctx context.Context, symbol string, trade TradeSnapshot) error
	PublishDepthDelta(ctx context.Context, symbol string, bids, asks []DepthLevel) error
	PublishKlineUpdate(ctx context.Context, symbol string, interval domain.Interval, k KlineSnapshot) error
	PublishUserDataUpdate(ctx context.Context, userID string, eventType UserDataEventType, payload interface{}) error
}

// TradeToSnapshot converts a domain.Trade to its wire shape.
func TradeToSnapshot(t *domain.Trade) TradeSnapshot {
	return TradeSnapshot{
		ID:           t.ID,
		Symbol:       t.Symbol,
		Price:        t.Price.String(),
		Quantity:     t.Quantity.String(),
		Time:         t.CreatedAt.UnixMilli(),
		IsBuyerMaker: t.IsBuyerMaker,
	}
}

// KlineToSnapshot converts a domain.Kline to its wire shape. final marks
// this as the bucket's closing publication (spec §4.4).
func KlineToSnapshot(k *domain.Kline, final bool) KlineSnapshot {
	return KlineSnapshot{
		Symbol:     k.Symbol,
		Interval:   string(k.Interval),
		OpenTime:   k.OpenTime.UnixMilli(),
		CloseTime:  k.CloseTime.UnixMilli(),
		Open:       k.Open.String(),
		High:       k.High.String(),
		Low:        k.Low.String(),
		Close:      k.Close.String(),
		Volume:     k.BaseVolume.String(),
		TradeCount: k.TradeCount,
		Final:      final,
	}
}

// OrderToSnapshot converts an order to its userData order-update wire shape.
func OrderToSnapshot(o *domain.Order) OrderUpdateSnapshot {
	return OrderUpdateSnapshot{
		ID:           o.ID,
		Symbol:       o.Symbol,
		Side:         string(o.Side),
		Type:         string(o.Type),
		OriginalQty:  o.Original.String(),
		ExecutedQty:  o.Executed.String(),
		Status:       string(o.Status),
		Price:        o.Price.String(),
		UpdateTimeMs: o.UpdatedAt.UnixMilli(),
	}
}
