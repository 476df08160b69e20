// Package merge provides the structural-hash de-duplication used when two
// collections of the same artifact type are combined.
package merge

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Hasher accumulates the stable fields of a record into a 64-bit structural hash.
type Hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

// NewHasher returns an empty hasher.
func NewHasher() *Hasher {
	return &Hasher{d: xxhash.New()}
}

// Float adds a float64 field.
func (h *Hasher) Float(v float64) *Hasher {
	binary.LittleEndian.PutUint64(h.buf[:], math.Float64bits(v))
	_, _ = h.d.Write(h.buf[:])
	return h
}

// Int adds an int64 field.
func (h *Hasher) Int(v int64) *Hasher {
	binary.LittleEndian.PutUint64(h.buf[:], uint64(v))
	_, _ = h.d.Write(h.buf[:])
	return h
}

// String adds a string field, length-prefixed so ("ab","c") and ("a","bc") differ.
func (h *Hasher) String(v string) *Hasher {
	h.Int(int64(len(v)))
	_, _ = h.d.WriteString(v)
	return h
}

// Sum returns the hash of everything added so far.
func (h *Hasher) Sum() uint64 {
	return h.d.Sum64()
}

// Dedupe returns the records of every collection in order, keeping the first
// record for each structural key. Merging is idempotent: Dedupe(a, Dedupe(a, b))
// equals Dedupe(a, b).
func Dedupe[T any](key func(T) uint64, collections ...[]T) []T {
	total := 0
	for _, c := range collections {
		total += len(c)
	}
	seen := make(map[uint64]struct{}, total)
	out := make([]T, 0, total)
	for _, c := range collections {
		for _, rec := range c {
			k := key(rec)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, rec)
		}
	}
	return out
}

// DedupeStrings keeps the first occurrence of every string.
func DedupeStrings(values ...[]string) []string {
	return Dedupe(func(s string) uint64 { return xxhash.Sum64String(s) }, values...)
}
