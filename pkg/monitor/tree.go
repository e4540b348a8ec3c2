package monitor

import (
	"sync"

	"go.uber.org/atomic"

	"geoindex/pkg/common"
)

// TreeMonitor observes the structural work of a tree index.
type TreeMonitor interface {
	SetHeight(h int)
	Height() int
	AddNbrRebuilt()
	NbrRebuilt() int
	AddSplit()
	NbrSplit() int
	// AddCase records which branch of an algorithm ran, keyed by name.
	AddCase(name string)
	CaseCounts() map[string]int
	// MatchedTreeNode records a node a search descended into. Only the
	// nodes of the latest search are kept.
	MatchedTreeNode(level int, env common.Envelope)
	MatchedTreeNodes(level int) []common.Envelope
	// ClearMatchedTreeNodes is called as a search starts.
	ClearMatchedTreeNodes()
	Reset()
}

// RTreeMonitor is the in-memory TreeMonitor.
type RTreeMonitor struct {
	height  atomic.Int64
	rebuilt atomic.Int64
	splits  atomic.Int64

	mu      sync.Mutex
	cases   map[string]int
	matched map[int][]common.Envelope
}

func NewRTreeMonitor() *RTreeMonitor {
	return &RTreeMonitor{
		cases:   make(map[string]int),
		matched: make(map[int][]common.Envelope),
	}
}

func (m *RTreeMonitor) SetHeight(h int) { m.height.Store(int64(h)) }
func (m *RTreeMonitor) Height() int     { return int(m.height.Load()) }
func (m *RTreeMonitor) AddNbrRebuilt()  { m.rebuilt.Inc() }
func (m *RTreeMonitor) NbrRebuilt() int { return int(m.rebuilt.Load()) }
func (m *RTreeMonitor) AddSplit()       { m.splits.Inc() }
func (m *RTreeMonitor) NbrSplit() int   { return int(m.splits.Load()) }

func (m *RTreeMonitor) AddCase(name string) {
	m.mu.Lock()
	m.cases[name]++
	m.mu.Unlock()
}

func (m *RTreeMonitor) CaseCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int, len(m.cases))
	for k, v := range m.cases {
		out[k] = v
	}
	return out
}

func (m *RTreeMonitor) MatchedTreeNode(level int, env common.Envelope) {
	m.mu.Lock()
	m.matched[level] = append(m.matched[level], env)
	m.mu.Unlock()
}

func (m *RTreeMonitor) ClearMatchedTreeNodes() {
	m.mu.Lock()
	clear(m.matched)
	m.mu.Unlock()
}

func (m *RTreeMonitor) MatchedTreeNodes(level int) []common.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]common.Envelope, len(m.matched[level]))
	copy(out, m.matched[level])
	return out
}

func (m *RTreeMonitor) Reset() {
	m.height.Store(0)
	m.rebuilt.Store(0)
	m.splits.Store(0)

	m.mu.Lock()
	m.cases = make(map[string]int)
	m.matched = make(map[int][]common.Envelope)
	m.mu.Unlock()
}

// EmptyMonitor discards everything.
type EmptyMonitor struct{}

func (EmptyMonitor) SetHeight(int)                          {}
func (EmptyMonitor) Height() int                            { return 0 }
func (EmptyMonitor) AddNbrRebuilt()                         {}
func (EmptyMonitor) NbrRebuilt() int                        { return 0 }
func (EmptyMonitor) AddSplit()                              {}
func (EmptyMonitor) NbrSplit() int                          { return 0 }
func (EmptyMonitor) AddCase(string)                         {}
func (EmptyMonitor) CaseCounts() map[string]int             { return nil }
func (EmptyMonitor) MatchedTreeNode(int, common.Envelope)   {}
func (EmptyMonitor) MatchedTreeNodes(int) []common.Envelope { return nil }
func (EmptyMonitor) ClearMatchedTreeNodes()                 {}
func (EmptyMonitor) Reset()                                 {}
