// Package storage holds the backing property indexes the curve indexes keep
// their keys in: a sorted (key, id) set with range lookups, in memory, in
// sqlite or in badger.
package storage

import (
	"encoding/binary"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"geoindex/pkg/common"
)

var ErrClosed = errors.New("storage closed")

// Key is the scalar type a property index is ordered by.
type Key interface {
	string | int64
}

type Entry[K Key] struct {
	ID  int64
	Key K
}

// PropertyIndex maps record ids to a scalar key. An id holds at most one key;
// adding it again replaces the previous one.
type PropertyIndex[K Key] interface {
	Add(id int64, key K) error
	AddBatch(entries []Entry[K]) error
	// Remove reports whether the id was present.
	Remove(id int64) (bool, error)
	Lookup(id int64) (K, bool, error)
	// QueryRange returns the ids whose key lies in the closed range, in key order.
	QueryRange(r common.CurveRange[K]) ([]int64, error)
	QueryAll() ([]int64, error)
	Count() (int, error)
	// Drop deletes every entry. The index stays usable.
	Drop() error
}

var invalidName = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// sanitizeName maps an index name onto [a-zA-Z0-9_] so it can serve as a
// table name and key prefix.
func sanitizeName(name string) string {
	return "idx_" + invalidName.ReplaceAllString(strings.ToLower(name), "_")
}

func isStringKey[K Key]() bool {
	var zero K
	_, ok := any(zero).(string)
	return ok
}

// encodeKey produces an order-preserving byte form of k.
func encodeKey[K Key](k K) []byte {
	switch v := any(k).(type) {
	case int64:
		return encodeInt64(v)
	case string:
		b := make([]byte, 0, len(v)+1)
		b = append(b, v...)
		return append(b, 0)
	}
	return nil
}

func decodeKey[K Key](b []byte) K {
	var k K
	switch p := any(&k).(type) {
	case *int64:
		*p = decodeInt64(b)
	case *string:
		*p = strings.TrimSuffix(string(b), "\x00")
	}
	return k
}

// encodeInt64 flips the sign bit so that big-endian byte order matches
// numeric order.
func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v)^(1<<63))
	return b
}

func decodeInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63))
}
