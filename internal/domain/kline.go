package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Interval is one of the eight supported kline bucket widths (spec §4.4).
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

// SupportedIntervals lists every interval the aggregator folds trades into,
// in ascending width order.
var SupportedIntervals = []Interval{
	Interval1m, Interval5m, Interval15m, Interval30m,
	Interval1h, Interval4h, Interval1d, Interval1w,
}

// Duration returns the calendar-independent length of the interval. 1w is
// always 7*24h and 1d is always 24h; the other intervals are fixed as well,
// since DST is not in scope for a UTC-anchored venue.
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	case Interval1w:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Kline is the OHLCV summary of trades in one (symbol, interval, openTime)
// bucket (spec §3, §4.4).
type Kline struct {
	Symbol    string
	Interval  Interval
	OpenTime  time.Time
	CloseTime time.Time

	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal

	BaseVolume  decimal.Decimal
	QuoteVolume decimal.Decimal
	TradeCount  int
}

// Fold applies one trade to the bucket per spec §4.4's incremental fold
// algorithm. Callers must present trades in non-decreasing created-at
// order (ties broken by id ascending) — folding is not commutative.
func (k *Kline) Fold(price, qty decimal.Decimal) {
	if k.TradeCount == 0 {
		k.Open = price
		k.High = price
		k.Low = price
	} else {
		if price.GreaterThan(k.High) {
			k.High = price
		}
		if price.LessThan(k.Low) {
			k.Low = price
		}
	}
	k.Close = price
	k.BaseVolume = k.BaseVolume.Add(qty)
	k.QuoteVolume = k.QuoteVolume.Add(price.Mul(qty))
	k.TradeCount++
}
