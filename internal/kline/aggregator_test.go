package kline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vantra-labs/matchcore/internal/domain"
	"github.com/vantra-labs/matchcore/internal/publish"
)

// memStore is a trivial in-memory Store fake, grounded on the same
// fake-repository style the teacher's own service tests use
// (internal/marketdata/service_test.go).
type memStore struct {
	rows map[string]*domain.Kline
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*domain.Kline)}
}

func (s *memStore) key(symbol string, interval domain.Interval, openTime int64) string {
	return symbol + "|" + string(interval) + "|" + time.UnixMilli(openTime).String()
}

func (s *memStore) Load(ctx context.Context, symbol string, interval domain.Interval, openTime int64) (*domain.Kline, error) {
	row, ok := s.rows[s.key(symbol, interval, openTime)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *memStore) Upsert(ctx context.Context, k *domain.Kline) error {
	cp := *k
	s.rows[s.key(k.Symbol, k.Interval, k.OpenTime.UnixMilli())] = &cp
	return nil
}

func (s *memStore) Range(ctx context.Context, symbol string, interval domain.Interval, from, to int64, limit int) ([]*domain.Kline, error) {
	var out []*domain.Kline
	for _, row := range s.rows {
		if row.Symbol == symbol && row.Interval == interval {
			out = append(out, row)
		}
	}
	return out, nil
}

// recordingPublisher captures every kline update so tests can assert on
// the final-flag transition CloseBucket introduces.
type recordingPublisher struct {
	klines []publish.KlineSnapshot
}

func (p *recordingPublisher) PublishTrade(ctx context.Context, symbol string, t publish.TradeSnapshot) error {
	return nil
}
func (p *recordingPublisher) PublishDepthDelta(ctx context.Context, symbol string, bids, asks []publish.DepthLevel) error {
	return nil
}
func (p *recordingPublisher) PublishKlineUpdate(ctx context.Context, symbol string, interval domain.Interval, k publish.KlineSnapshot) error {
	p.klines = append(p.klines, k)
	return nil
}
func (p *recordingPublisher) PublishUserDataUpdate(ctx context.Context, userID string, eventType publish.UserDataEventType, payload interface{}) error {
	return nil
}

// CloseBucket, driven by the sweep once a bucket's window elapses, must
// publish exactly one more update than the fold-driven ones, with Final
// set, and then drop the bucket so nothing more is published for it.
func TestAggregator_CloseBucket_PublishesFinalThenDrops(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	agg := NewAggregator(store, pub, zap.NewNop())

	openTime, closeTime := AlignBucket(domain.Interval1m, time.Now())
	require.NoError(t, agg.ProcessTrade(context.Background(), trade("t1", "10", "1", openTime.Add(time.Second))))
	// One fold-driven update per supported interval.
	folded := len(domain.SupportedIntervals)
	require.Len(t, pub.klines, folded)
	assert.False(t, pub.klines[0].Final)

	agg.CloseBucket(context.Background(), "X", domain.Interval1m, closeTime.Add(time.Second))
	require.Len(t, pub.klines, folded+1)
	assert.True(t, pub.klines[folded].Final)

	assert.Nil(t, agg.CurrentBucket("X", domain.Interval1m), "a closed bucket must be dropped from the in-flight map")

	agg.CloseBucket(context.Background(), "X", domain.Interval1m, closeTime.Add(2*time.Second))
	assert.Len(t, pub.klines, folded+1, "closing an already-closed bucket must not publish again")
}

// A symbol with no trades folded, and so no bucket in flight, has nothing to
// report.
func TestAggregator_CloseBucket_NoTradesNoPublish(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	agg := NewAggregator(store, pub, zap.NewNop())

	agg.CloseBucket(context.Background(), "X", domain.Interval1m, time.Now())
	assert.Empty(t, pub.klines)
}

func trade(id string, price, qty string, at time.Time) *domain.Trade {
	return &domain.Trade{
		ID:        id,
		Symbol:    "X",
		Price:     dec(price),
		Quantity:  dec(qty),
		CreatedAt: at,
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Scenario F — kline fold: three trades folding into one 1m bucket.
func TestAggregator_ScenarioF_Fold(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store, nil, zap.NewNop())

	openTime, _ := AlignBucket(domain.Interval1m, time.Now())
	t1 := openTime.Add(time.Second)
	t2 := openTime.Add(2 * time.Second)
	t3 := openTime.Add(3 * time.Second)

	require.NoError(t, agg.ProcessTrade(context.Background(), trade("t1", "10", "1", t1)))
	require.NoError(t, agg.ProcessTrade(context.Background(), trade("t2", "12", "2", t2)))
	require.NoError(t, agg.ProcessTrade(context.Background(), trade("t3", "9", "1", t3)))

	k := agg.CurrentBucket("X", domain.Interval1m)
	require.NotNil(t, k)
	assert.True(t, k.Open.Equal(dec("10")))
	assert.True(t, k.High.Equal(dec("12")))
	assert.True(t, k.Low.Equal(dec("9")))
	assert.True(t, k.Close.Equal(dec("9")))
	assert.True(t, k.BaseVolume.Equal(dec("4")))
	assert.True(t, k.QuoteVolume.Equal(dec("43")))
	assert.Equal(t, 3, k.TradeCount)
}

// Invariant 8: bucket alignment across all eight supported intervals.
func TestAlignBucket_BucketAlignmentAllIntervals(t *testing.T) {
	now := time.Date(2026, 7, 31, 13, 47, 22, 0, time.UTC)

	for _, interval := range domain.SupportedIntervals {
		open, close := AlignBucket(interval, now)
		assert.True(t, open.Before(now) || open.Equal(now), "interval %s: open must not be after trade time", interval)
		assert.True(t, close.After(now), "interval %s: close must be after trade time", interval)
		assert.Equal(t, 0, open.Nanosecond())
	}
}

// Invariant 8 (1w special case): bucket is Monday-anchored.
func TestAlignBucket_1w_MondayAnchored(t *testing.T) {
	// 2026-07-31 is a Friday.
	friday := time.Date(2026, 7, 31, 13, 0, 0, 0, time.UTC)
	open, _ := AlignBucket(domain.Interval1w, friday)

	assert.Equal(t, time.Monday, open.Weekday())
	assert.True(t, open.Before(friday))
	assert.Equal(t, 2026, open.Year())
	assert.Equal(t, time.July, open.Month())
	assert.Equal(t, 27, open.Day())
}

// Boundary: a trade at exactly the next bucket's open time falls into the
// next bucket, not the current one.
func TestAlignBucket_BoundaryTradeFallsIntoNextBucket(t *testing.T) {
	bucketStart := time.Date(2026, 7, 31, 13, 0, 0, 0, time.UTC)
	_, close := AlignBucket(domain.Interval1m, bucketStart)

	nextBucketOpen := bucketStart.Add(time.Minute)
	assert.True(t, close.Before(nextBucketOpen))

	openOfNext, _ := AlignBucket(domain.Interval1m, nextBucketOpen)
	assert.True(t, openOfNext.Equal(nextBucketOpen))
	assert.False(t, openOfNext.Equal(bucketStart))
}

// Fold associativity under ordered input: folding in one pass equals
// folding a prefix then continuing with the suffix.
func TestGenerateKline_FoldAssociativity(t *testing.T) {
	openTime, _ := AlignBucket(domain.Interval1m, time.Now())
	base := openTime.UnixMilli()

	trades := []*domain.Trade{
		trade("t1", "10", "1", openTime.Add(time.Second)),
		trade("t2", "12", "2", openTime.Add(2*time.Second)),
		trade("t3", "9", "1", openTime.Add(3*time.Second)),
		trade("t4", "11", "3", openTime.Add(4*time.Second)),
	}

	whole := GenerateKline("X", domain.Interval1m, base, trades)

	prefix := GenerateKline("X", domain.Interval1m, base, trades[:2])
	for _, tr := range trades[2:] {
		prefix.Fold(tr.Price, tr.Quantity)
	}

	assert.True(t, whole.Open.Equal(prefix.Open))
	assert.True(t, whole.High.Equal(prefix.High))
	assert.True(t, whole.Low.Equal(prefix.Low))
	assert.True(t, whole.Close.Equal(prefix.Close))
	assert.True(t, whole.BaseVolume.Equal(prefix.BaseVolume))
	assert.True(t, whole.QuoteVolume.Equal(prefix.QuoteVolume))
	assert.Equal(t, whole.TradeCount, prefix.TradeCount)
}
