package monitor

import (
	"go.uber.org/atomic"
)

// Stats counts the workload an index has served. Every record a search
// loads is either a hit (it passed the geometry test) or a miss.
type Stats struct {
	readCount  atomic.Uint64
	writeCount atomic.Uint64
	hitCount   atomic.Uint64
	missCount  atomic.Uint64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) RecordRead() {
	s.readCount.Inc()
}

func (s *Stats) RecordWrite() {
	s.writeCount.Inc()
}

func (s *Stats) RecordHit() {
	s.hitCount.Inc()
}

func (s *Stats) RecordMiss() {
	s.missCount.Inc()
}

func (s *Stats) Reads() uint64  { return s.readCount.Load() }
func (s *Stats) Writes() uint64 { return s.writeCount.Load() }
func (s *Stats) Hits() uint64   { return s.hitCount.Load() }
func (s *Stats) Misses() uint64 { return s.missCount.Load() }

func (s *Stats) GetReadWriteRatio() float64 {
	reads := s.readCount.Load()
	writes := s.writeCount.Load()

	if writes == 0 {
		if reads > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(reads) / float64(writes)
}

// HitRatio is hits over loaded records, 0 when nothing was loaded.
func (s *Stats) HitRatio() float64 {
	hits := s.hitCount.Load()
	total := hits + s.missCount.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (s *Stats) Reset() {
	s.readCount.Store(0)
	s.writeCount.Store(0)
	s.hitCount.Store(0)
	s.missCount.Store(0)
}
