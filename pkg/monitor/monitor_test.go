package monitor

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoindex/pkg/common"
)

func TestStatsCounters(t *testing.T) {
	s := NewStats()
	assert.Equal(t, 0.0, s.HitRatio())
	assert.Equal(t, 0.0, s.GetReadWriteRatio())

	s.RecordRead()
	assert.Equal(t, 100.0, s.GetReadWriteRatio())

	s.RecordWrite()
	s.RecordWrite()
	s.RecordHit()
	s.RecordHit()
	s.RecordHit()
	s.RecordMiss()

	assert.Equal(t, uint64(3), s.Hits())
	assert.Equal(t, uint64(1), s.Misses())
	assert.InDelta(t, 0.75, s.HitRatio(), 1e-9)
	assert.InDelta(t, 0.5, s.GetReadWriteRatio(), 1e-9)

	s.Reset()
	assert.Zero(t, s.Hits())
	assert.Zero(t, s.Reads())
}

func TestRTreeMonitor(t *testing.T) {
	m := NewRTreeMonitor()
	m.SetHeight(3)
	m.AddSplit()
	m.AddSplit()
	m.AddNbrRebuilt()
	m.AddCase("quadratic")
	m.AddCase("quadratic")
	m.AddCase("greene")
	m.MatchedTreeNode(1, common.NewEnvelope(0, 0, 1, 1))

	assert.Equal(t, 3, m.Height())
	assert.Equal(t, 2, m.NbrSplit())
	assert.Equal(t, 1, m.NbrRebuilt())
	assert.Equal(t, map[string]int{"quadratic": 2, "greene": 1}, m.CaseCounts())
	require.Len(t, m.MatchedTreeNodes(1), 1)
	assert.Empty(t, m.MatchedTreeNodes(0))

	m.ClearMatchedTreeNodes()
	assert.Empty(t, m.MatchedTreeNodes(1))
	assert.Equal(t, 2, m.NbrSplit(), "counters survive a new search")
	m.MatchedTreeNode(1, common.NewEnvelope(0, 0, 1, 1))

	m.Reset()
	assert.Zero(t, m.Height())
	assert.Empty(t, m.CaseCounts())
	assert.Empty(t, m.MatchedTreeNodes(1))
}

func TestCollector(t *testing.T) {
	s := NewStats()
	s.RecordHit()
	s.RecordHit()
	s.RecordMiss()
	tree := NewRTreeMonitor()
	tree.SetHeight(2)

	c := NewCollector("places", s, tree)
	assert.Equal(t, 7, testutil.CollectAndCount(c))

	expected := `
# HELP geoindex_index_hits_total Loaded records that matched the search filter.
# TYPE geoindex_index_hits_total counter
geoindex_index_hits_total{index="places"} 2
# HELP geoindex_index_height Current height of the tree.
# TYPE geoindex_index_height gauge
geoindex_index_height{index="places"} 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"geoindex_index_hits_total", "geoindex_index_height")
	require.NoError(t, err)

	withoutTree := NewCollector("curve", s, nil)
	assert.Equal(t, 4, testutil.CollectAndCount(withoutTree))
}
