// Package filter holds the three divergence-detection and approximate
// membership structures used by the anti-entropy protocol: a partitioned
// XOR bucket set, a Bloom filter, and a Cuckoo filter. None of them know
// about rows, tables, or peers; they operate on plain strings so the
// versioned store and sync engine can feed them key/value encodings however
// they see fit.
package filter

import "github.com/obsidian-reach/gossipkv/pkg/hashutil"

// evictionSalt is the multiplicative salt applied per additional value when
// folding a key plus a tuple of values into one combined hash.
const evictionSalt = 0x9E3779B1

// BucketedHashSet is a fixed-size partitioned digest: numBuckets 32-bit
// words, each the running XOR of every (key, values...) combination ever
// inserted that hashed into it. Because XOR is its own inverse, inserting
// the same sequence twice (in any order, from any peer) produces identical
// bucket contents; that's what makes bucket-by-bucket comparison a cheap
// divergence detector.
type BucketedHashSet struct {
	seed    uint32
	buckets []uint32
}

// NewBucketedHashSet builds a set with numBuckets buckets (numBuckets must
// be > 0) and the given seed (0 is the default when callers have no reason
// to pick one).
func NewBucketedHashSet(numBuckets int, seed uint32) *BucketedHashSet {
	if numBuckets <= 0 {
		panic("filter: numBuckets must be > 0")
	}
	return &BucketedHashSet{
		seed:    seed,
		buckets: make([]uint32, numBuckets),
	}
}

func (s *BucketedHashSet) combined(key string, values ...string) (bucketIndex int, combined uint32) {
	keyHash := hashutil.FNV1a(key, s.seed)
	bucketIndex = int(keyHash%uint32(len(s.buckets))) + 1
	combined = keyHash
	for i, v := range values {
		salt := uint32((i + 1) * evictionSalt) // salt index is 1-based
		combined ^= hashutil.FNV1a(v, s.seed+salt)
	}
	return bucketIndex, combined
}

// bucketSlot maps the 1-based bucketIndex back onto the zero-based
// Go slice.
func (s *BucketedHashSet) bucketSlot(bucketIndex int) int {
	return bucketIndex - 1
}

// Insert folds key and values into the bucket they hash to.
func (s *BucketedHashSet) Insert(key string, values ...string) {
	bucketIndex, combined := s.combined(key, values...)
	slot := s.bucketSlot(bucketIndex)
	s.buckets[slot] ^= combined
}

// Matches reports whether the bucket for (key, values...) currently holds
// exactly the combined hash this sequence would produce: true only when an
// odd number of identical insertions (normally exactly one) landed there
// and nothing else touched that bucket.
func (s *BucketedHashSet) Matches(key string, values ...string) bool {
	bucketIndex, combined := s.combined(key, values...)
	slot := s.bucketSlot(bucketIndex)
	return s.buckets[slot] == combined
}

// Clear zeroes every bucket.
func (s *BucketedHashSet) Clear() {
	for i := range s.buckets {
		s.buckets[i] = 0
	}
}

// NumBuckets returns the configured bucket count.
func (s *BucketedHashSet) NumBuckets() int {
	return len(s.buckets)
}

// Export returns the positional triple {seed, numBuckets, buckets}. The
// returned slice is a copy; mutating it does not affect the set.
func (s *BucketedHashSet) Export() (seed uint32, numBuckets int, buckets []uint32) {
	out := make([]uint32, len(s.buckets))
	copy(out, s.buckets)
	return s.seed, len(s.buckets), out
}

// Import replaces the receiver's state (seed and bucket array, including
// its size) from a previously exported triple. It fails if numBuckets does
// not equal len(buckets); the receiver's own bucket count is not compared.
func (s *BucketedHashSet) Import(seed uint32, numBuckets int, buckets []uint32) error {
	if numBuckets != len(buckets) {
		return errBucketLengthMismatch
	}
	s.seed = seed
	s.buckets = make([]uint32, len(buckets))
	copy(s.buckets, buckets)
	return nil
}

// Diff returns the (1-based) bucket indices that differ from other. It is
// an operator/debugging convenience, not part of the anti-entropy wire
// protocol: it tells a caller *how much* two replicas have diverged without
// requiring a full per-row digest exchange.
func (s *BucketedHashSet) Diff(other *BucketedHashSet) []int {
	n := len(s.buckets)
	if len(other.buckets) < n {
		n = len(other.buckets)
	}
	var diffs []int
	for i := 0; i < n; i++ {
		if s.buckets[i] != other.buckets[i] {
			diffs = append(diffs, i+1)
		}
	}
	return diffs
}
