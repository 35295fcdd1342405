package kline

import (
	"time"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// AlignBucket computes the (openTime, closeTime) pair a trade at timestamp
// t falls into for the given interval, per spec §4.4's alignment rules.
// Generalizes the teacher's normalizeTimestamp
// (internal/trading/market_data/timeframe/aggregator.go) from 7 intervals
// to the spec's 8, adding the ISO-week-Monday-anchored 1w case the teacher
// has no equivalent for.
func AlignBucket(interval domain.Interval, t time.Time) (open, close time.Time) {
	t = t.UTC()

	switch interval {
	case domain.Interval1m:
		open = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	case domain.Interval5m:
		open = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()/5*5, 0, 0, time.UTC)
	case domain.Interval15m:
		open = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()/15*15, 0, 0, time.UTC)
	case domain.Interval30m:
		open = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()/30*30, 0, 0, time.UTC)
	case domain.Interval1h:
		open = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case domain.Interval4h:
		open = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()/4*4, 0, 0, 0, time.UTC)
	case domain.Interval1d:
		open = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case domain.Interval1w:
		open = mostRecentMonday(t)
	default:
		open = t
	}

	close = open.Add(interval.Duration()).Add(-time.Millisecond)
	return open, close
}

// mostRecentMonday floors t to 00:00:00 UTC of the ISO week's Monday (spec
// §4.4: "UTC date floored to the most recent Monday").
func mostRecentMonday(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	// time.Weekday: Sunday=0 ... Saturday=6. Days since Monday:
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// msToTime converts a unix-millisecond timestamp to UTC time.Time.
func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
