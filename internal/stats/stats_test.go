package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vantra-labs/matchcore/internal/domain"
)

func TestTracker_RecordCycle_AveragesDurations(t *testing.T) {
	tr := NewTracker()

	s1 := tr.RecordCycle("X", 2, 1, 100)
	assert.Equal(t, int64(100), s1.LastMatchTimeMs)
	assert.InDelta(t, 100, s1.AverageMatchTimeMs, 0.001)

	s2 := tr.RecordCycle("X", 3, 2, 200)
	assert.Equal(t, int64(200), s2.LastMatchTimeMs)
	assert.InDelta(t, 150, s2.AverageMatchTimeMs, 0.001)
}

func TestTracker_RecordCycle_IsolatesPerSymbol(t *testing.T) {
	tr := NewTracker()
	tr.RecordCycle("X", 1, 1, 100)
	s := tr.RecordCycle("Y", 1, 1, 500)
	assert.InDelta(t, 500, s.AverageMatchTimeMs, 0.001)
}

func TestTracker_CumulativeStats_AccumulatesCounters(t *testing.T) {
	tr := NewTracker()
	m := &domain.OrderMatcher{Symbol: "X"}

	tr.CumulativeStats(m, 2, 1, 100)
	tr.CumulativeStats(m, 3, 2, 200)

	assert.Equal(t, int64(5), m.Stats.TotalOrdersProcessed)
	assert.Equal(t, int64(3), m.Stats.TotalTradesGenerated)
	assert.Equal(t, int64(200), m.Stats.LastMatchTimeMs)
	assert.InDelta(t, 150, m.Stats.AverageMatchTimeMs, 0.001)
}
