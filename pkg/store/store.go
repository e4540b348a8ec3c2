// Package store is the boundary to the host record store. Indexes only ever
// see records through Store; MemoryStore is the in-process implementation
// used by the layer tooling and tests.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

var ErrRecordNotFound = errors.New("record not found")

// Record is a host record: an opaque id plus its native properties.
type Record struct {
	ID         int64
	Properties map[string]any
}

func (r *Record) String() string {
	return fmt.Sprintf("Record{ID: %d, Props: %d}", r.ID, len(r.Properties))
}

// Relationship is an edge between two records.
type Relationship struct {
	From int64
	To   int64
	Type string
}

type Store interface {
	Get(id int64) (*Record, error)
	// Delete removes the record together with every relationship touching it.
	Delete(id int64) error
}

type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	recs   map[int64]*Record
	rels   map[int64][]Relationship
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		recs:   make(map[int64]*Record),
		rels:   make(map[int64][]Relationship),
	}
}

// Create allocates a new record with the given properties.
func (s *MemoryStore) Create(props map[string]any) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if props == nil {
		props = make(map[string]any)
	}
	rec := &Record{ID: s.nextID, Properties: props}
	s.nextID++
	s.recs[rec.ID] = rec
	return rec
}

// Put stores rec under its own id, replacing any previous record.
func (s *MemoryStore) Put(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Properties == nil {
		rec.Properties = make(map[string]any)
	}
	s.recs[rec.ID] = rec
	if rec.ID >= s.nextID {
		s.nextID = rec.ID + 1
	}
}

func (s *MemoryStore) Get(id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[id]
	if !ok {
		return nil, errors.Wrapf(ErrRecordNotFound, "id %d", id)
	}
	return rec, nil
}

func (s *MemoryStore) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recs[id]; !ok {
		return errors.Wrapf(ErrRecordNotFound, "id %d", id)
	}
	for _, rel := range s.rels[id] {
		other := rel.To
		if other == id {
			other = rel.From
		}
		s.rels[other] = removeRel(s.rels[other], rel)
	}
	delete(s.rels, id)
	delete(s.recs, id)
	return nil
}

// Relate records a typed edge between two existing records.
func (s *MemoryStore) Relate(from, to int64, relType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recs[from]; !ok {
		return errors.Wrapf(ErrRecordNotFound, "id %d", from)
	}
	if _, ok := s.recs[to]; !ok {
		return errors.Wrapf(ErrRecordNotFound, "id %d", to)
	}
	rel := Relationship{From: from, To: to, Type: relType}
	s.rels[from] = append(s.rels[from], rel)
	if to != from {
		s.rels[to] = append(s.rels[to], rel)
	}
	return nil
}

func (s *MemoryStore) Relationships(id int64) []Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Relationship, len(s.rels[id]))
	copy(out, s.rels[id])
	return out
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}

// IDs returns all record ids in ascending order.
func (s *MemoryStore) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.recs))
	for id := range s.recs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func removeRel(rels []Relationship, target Relationship) []Relationship {
	out := rels[:0]
	for _, r := range rels {
		if r != target {
			out = append(out, r)
		}
	}
	return out
}
