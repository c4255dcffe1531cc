package filter

import (
	"math/rand"

	"github.com/obsidian-reach/gossipkv/pkg/hashutil"
)

const cuckooAltMul = 0x5bd1e995

// CuckooFilter is a partial-key cuckoo filter: each of numBuckets buckets
// holds up to bucketSize short fingerprints instead of full items. Buckets
// are addressed 1-based throughout, so the alternate-bucket derivation
// stays self-inverse without an off-by-one.
type CuckooFilter struct {
	numBuckets       int
	bucketSize       int
	fingerprintBits  uint
	fingerprintMask  uint32
	maxKicks         int
	buckets          [][]uint32 // sparse: each bucket holds up to bucketSize fingerprints, 0 = empty slot
	itemCount        int
	evictionFailures int
	rng              *rand.Rand
}

// NewCuckooFilter sizes a filter for numItems expected insertions.
// bucketSize/fingerprintBits/maxKicks fall back to documented defaults
// (4, 12, 512) when given as <= 0.
func NewCuckooFilter(numItems, bucketSize, fingerprintBits, maxKicks int) *CuckooFilter {
	if numItems <= 0 {
		numItems = 1
	}
	if bucketSize <= 0 {
		bucketSize = 4
	}
	if fingerprintBits <= 0 {
		fingerprintBits = 12
	}
	if maxKicks <= 0 {
		maxKicks = 512
	}
	numBuckets := nextPowerOfTwo((numItems + bucketSize - 1) / bucketSize)
	if numBuckets < 1 {
		numBuckets = 1
	}
	buckets := make([][]uint32, numBuckets)
	for i := range buckets {
		buckets[i] = make([]uint32, bucketSize)
	}
	return &CuckooFilter{
		numBuckets:      numBuckets,
		bucketSize:      bucketSize,
		fingerprintBits: uint(fingerprintBits),
		fingerprintMask: (uint32(1) << uint(fingerprintBits)) - 1,
		maxKicks:        maxKicks,
		buckets:         buckets,
		rng:             rand.New(rand.NewSource(1)),
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// fingerprint derives a non-zero fingerprint for v: zero is reserved to
// mean "unset slot".
func (c *CuckooFilter) fingerprint(v string) uint32 {
	fp := (hashutil.FNV1a(v, 0) >> 16) & c.fingerprintMask
	if fp == 0 {
		fp = 1
	}
	return fp
}

// bucketIndex returns the 1-based primary bucket for v.
func (c *CuckooFilter) bucketIndex(v string) int {
	return int(hashutil.FNV1a(v, 0)%uint32(c.numBuckets)) + 1
}

// alternateBucket computes the partner bucket for (i, fp). It is
// self-inverse in the second argument: alternateBucket(alternateBucket(i,
// fp), fp) == i, because it XORs the fingerprint's scrambled hash into
// a zero-based copy of i and XOR is its own inverse.
func (c *CuckooFilter) alternateBucket(i int, fp uint32) int {
	h := (fp * cuckooAltMul) ^ ((fp * cuckooAltMul) >> 15)
	zeroBased := (i - 1) % c.numBuckets
	alt := (zeroBased ^ int(h%uint32(c.numBuckets))) % c.numBuckets
	return alt + 1
}

func (c *CuckooFilter) slot(bucketIndex int) []uint32 {
	return c.buckets[bucketIndex-1]
}

// Insert places v's fingerprint in its primary or alternate bucket,
// evicting and relocating existing fingerprints (random walk, up to
// maxKicks steps) when both candidate buckets are full. On exhaustion it
// returns ErrFilterFull. Prior evictions from this attempt are left in
// place and itemCount is not rolled back to match them; see DESIGN.md and
// Stats().
func (c *CuckooFilter) Insert(v string) error {
	fp := c.fingerprint(v)
	i1 := c.bucketIndex(v)
	i2 := c.alternateBucket(i1, fp)

	if c.insertIntoBucket(i1, fp) || c.insertIntoBucket(i2, fp) {
		c.itemCount++
		return nil
	}

	// Per the filter's eviction rule: start the random walk from i1 when
	// v's hash is even, i2 otherwise.
	evictBucket := i2
	if hashutil.FNV1a(v, 0)%2 == 0 {
		evictBucket = i1
	}

	for kick := 0; kick < c.maxKicks; kick++ {
		slot := c.slot(evictBucket)
		victimIdx := c.rng.Intn(len(slot))
		victimFp := slot[victimIdx]
		slot[victimIdx] = fp

		fp = victimFp
		evictBucket = c.alternateBucket(evictBucket, fp)
		if c.insertIntoBucket(evictBucket, fp) {
			c.itemCount++
			return nil
		}
	}

	c.evictionFailures++
	return ErrFilterFull
}

func (c *CuckooFilter) insertIntoBucket(bucketIndex int, fp uint32) bool {
	slot := c.slot(bucketIndex)
	for i, existing := range slot {
		if existing == 0 {
			slot[i] = fp
			return true
		}
	}
	return false
}

// Contains scans the primary then alternate bucket for v's fingerprint.
func (c *CuckooFilter) Contains(v string) bool {
	fp := c.fingerprint(v)
	i1 := c.bucketIndex(v)
	i2 := c.alternateBucket(i1, fp)
	return bucketHasFingerprint(c.slot(i1), fp) || bucketHasFingerprint(c.slot(i2), fp)
}

func bucketHasFingerprint(slot []uint32, fp uint32) bool {
	for _, existing := range slot {
		if existing == fp {
			return true
		}
	}
	return false
}

// Delete removes at most one occurrence of v's fingerprint from its
// primary or alternate bucket. Duplicate insertions are not tracked, so
// deleting an item inserted twice only removes one occurrence.
func (c *CuckooFilter) Delete(v string) bool {
	fp := c.fingerprint(v)
	i1 := c.bucketIndex(v)
	i2 := c.alternateBucket(i1, fp)
	if removeFingerprint(c.slot(i1), fp) || removeFingerprint(c.slot(i2), fp) {
		c.itemCount--
		return true
	}
	return false
}

func removeFingerprint(slot []uint32, fp uint32) bool {
	for i, existing := range slot {
		if existing == fp {
			slot[i] = 0
			return true
		}
	}
	return false
}

// Clear empties every bucket and resets itemCount.
func (c *CuckooFilter) Clear() {
	for _, b := range c.buckets {
		for i := range b {
			b[i] = 0
		}
	}
	c.itemCount = 0
	c.evictionFailures = 0
}

// Stats reports the committed item count and configured bucket count. Per
// the adopted design question resolution, itemCount can drift above the
// number of fingerprints actually retrievable via Contains when an Insert
// ultimately failed after relocating existing entries; EvictionFailures
// counts how many times that has happened.
func (c *CuckooFilter) Stats() (itemCount, bucketCount int) {
	return c.itemCount, c.numBuckets
}

// EvictionFailures returns the number of Insert calls that exhausted
// maxKicks without finding a free slot.
func (c *CuckooFilter) EvictionFailures() int {
	return c.evictionFailures
}

// FingerprintMask exposes the mask used to derive fingerprints, for
// property tests that need to enumerate the valid fingerprint range.
func (c *CuckooFilter) FingerprintMask() uint32 {
	return c.fingerprintMask
}

// NumBuckets exposes the bucket count for property tests.
func (c *CuckooFilter) NumBuckets() int {
	return c.numBuckets
}

// AlternateBucket exposes the alternate-bucket derivation for property
// tests without requiring a real insert.
func (c *CuckooFilter) AlternateBucket(i int, fp uint32) int {
	return c.alternateBucket(i, fp)
}

// sparseBuckets is the positional export form: each bucket as all of its
// slots in slot order (zero entries are "unset" and carried explicitly so
// slot positions survive the round-trip).
type sparseBuckets = [][]uint32

// Export returns the positional quintuple
// [numBuckets, bucketSize, fingerprintBits, maxKicks, sparseBuckets].
func (c *CuckooFilter) Export() (numBuckets, bucketSize, fingerprintBits, maxKicks int, buckets sparseBuckets) {
	out := make(sparseBuckets, len(c.buckets))
	for i, b := range c.buckets {
		row := make([]uint32, len(b))
		copy(row, b)
		out[i] = row
	}
	return c.numBuckets, c.bucketSize, int(c.fingerprintBits), c.maxKicks, out
}

// ImportCuckooFilter rebuilds a filter from a prior Export. itemCount is
// recomputed from the non-zero fingerprint slots.4.
func ImportCuckooFilter(numBuckets, bucketSize, fingerprintBits, maxKicks int, buckets sparseBuckets) *CuckooFilter {
	out := make([][]uint32, len(buckets))
	count := 0
	for i, b := range buckets {
		row := make([]uint32, len(b))
		copy(row, b)
		out[i] = row
		for _, fp := range row {
			if fp != 0 {
				count++
			}
		}
	}
	return &CuckooFilter{
		numBuckets:      numBuckets,
		bucketSize:      bucketSize,
		fingerprintBits: uint(fingerprintBits),
		fingerprintMask: (uint32(1) << uint(fingerprintBits)) - 1,
		maxKicks:        maxKicks,
		buckets:         out,
		itemCount:       count,
		rng:             rand.New(rand.NewSource(1)),
	}
}
