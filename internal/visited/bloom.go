// Package visited implements C2: a probabilistic "seen before?" set over
// normalized URLs.
//
// Contains and Insert are combined behind a single mutex so that two workers
// racing to dequeue the same URL cannot both observe "not seen" and proceed
// (spec.md 4.2's atomic-or-guarded requirement). False negatives are
// forbidden by construction: a bit is only ever set, never cleared.
package visited

import (
	"math"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"lukechampine.com/blake3"
)

const (
	// DefaultCapacity is the expected number of distinct URLs (spec.md 4.2).
	DefaultCapacity = 1_000_000
	// DefaultFalsePositiveRate is the target false-positive probability at
	// DefaultCapacity.
	DefaultFalsePositiveRate = 0.01
)

// BloomVisitedSet is a classic k-hash bloom filter backed by a bitset.BitSet,
// sized from the desired capacity and false-positive rate using the
// standard m = -(n*ln(p))/(ln(2)^2), k = (m/n)*ln(2) formulas.
type BloomVisitedSet struct {
	mu   sync.Mutex
	bits *bitset.BitSet
	m    uint
	k    uint
}

// New creates a BloomVisitedSet sized for capacity items at the given target
// false-positive rate.
func New(capacity int, falsePositiveRate float64) *BloomVisitedSet {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = DefaultFalsePositiveRate
	}
	n := float64(capacity)
	m := uint(math.Ceil(-(n * math.Log(falsePositiveRate)) / (math.Ln2 * math.Ln2)))
	if m < 8 {
		m = 8
	}
	k := uint(math.Round((float64(m) / n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return &BloomVisitedSet{bits: bitset.New(m), m: m, k: k}
}

// indexes derives k independent bit positions from a normalized URL using
// the double-hashing technique (Kirsch-Mitzenmacher): two BLAKE3-derived
// 64-bit seeds h1, h2 combine as h1 + i*h2 for i in [0, k).
func (b *BloomVisitedSet) indexes(normalizedURL string) []uint {
	sum := blake3.Sum256([]byte(normalizedURL))
	h1 := bytesToUint64(sum[0:8])
	h2 := bytesToUint64(sum[8:16])
	idx := make([]uint, b.k)
	for i := uint(0); i < b.k; i++ {
		combined := h1 + i*h2
		idx[i] = uint(combined % uint64(b.m))
	}
	return idx
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Contains reports whether normalizedURL has (probably) been inserted.
func (b *BloomVisitedSet) Contains(normalizedURL string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.containsLocked(normalizedURL)
}

func (b *BloomVisitedSet) containsLocked(normalizedURL string) bool {
	for _, i := range b.indexes(normalizedURL) {
		if !b.bits.Test(i) {
			return false
		}
	}
	return true
}

// Insert marks normalizedURL as seen. There is no corresponding removal:
// bloom filters only grow more confident over time.
func (b *BloomVisitedSet) Insert(normalizedURL string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, i := range b.indexes(normalizedURL) {
		b.bits.Set(i)
	}
}

// TestAndInsert atomically checks membership and inserts if absent,
// returning whether the URL was already present. This is the primitive the
// fetch pipeline (C10) uses for its dedup step so that two concurrent
// workers racing on the same URL cannot both observe "not visited".
func (b *BloomVisitedSet) TestAndInsert(normalizedURL string) (alreadySeen bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.containsLocked(normalizedURL) {
		return true
	}
	for _, i := range b.indexes(normalizedURL) {
		b.bits.Set(i)
	}
	return false
}
