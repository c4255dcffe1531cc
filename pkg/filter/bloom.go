package filter

import (
	"math"

	"github.com/obsidian-reach/gossipkv/pkg/hashutil"
)

// BloomFilter is a classic k-hash bit-array membership filter. Bit storage
// is an array of 32-bit words (not a generic bitset type) because the
// exported form must round-trip byte-for-byte between peers running this
// exact implementation. See DESIGN.md for why no third-party bitset
// library is used here.
type BloomFilter struct {
	numItems  int
	fpr       float64
	numBits   int // m
	numHashes int // k
	words     []uint32
}

// NewBloomFilter sizes a filter for numItems expected insertions at the
// given false-positive rate (defaults to 0.01 when fpr <= 0).
func NewBloomFilter(numItems int, fpr float64) *BloomFilter {
	if numItems <= 0 {
		numItems = 1
	}
	if fpr <= 0 {
		fpr = 0.01
	}
	n := float64(numItems)
	m := int(math.Ceil(n * (-math.Log(fpr) / (math.Ln2 * math.Ln2))))
	if m < 1 {
		m = 1
	}
	k := int(math.Ceil((float64(m) / n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	numWords := (m + 31) / 32
	return &BloomFilter{
		numItems:  numItems,
		fpr:       fpr,
		numBits:   m,
		numHashes: k,
		words:     make([]uint32, numWords),
	}
}

func wordAndBit(i int) (word, bit int) {
	return i/32 + 1, i % 32
}

func (f *BloomFilter) setBit(i int) {
	word, bit := wordAndBit(i)
	f.words[word-1] |= 1 << uint(bit)
}

func (f *BloomFilter) getBit(i int) bool {
	word, bit := wordAndBit(i)
	return f.words[word-1]&(1<<uint(bit)) != 0
}

// Insert sets the k bits derived from v.
func (f *BloomFilter) Insert(v string) {
	for s := 0; s < f.numHashes; s++ {
		idx := int(hashutil.FNV1a(v, uint32(s)) % uint32(f.numBits))
		f.setBit(idx)
	}
}

// Contains returns false as soon as any of the k derived bits is unset
// (never a false negative), true otherwise (possibly a false positive).
func (f *BloomFilter) Contains(v string) bool {
	for s := 0; s < f.numHashes; s++ {
		idx := int(hashutil.FNV1a(v, uint32(s)) % uint32(f.numBits))
		if !f.getBit(idx) {
			return false
		}
	}
	return true
}

// EstimatedFpr returns (1 - e^(-kn/m))^k, the textbook false-positive rate
// estimate for the filter's current configuration (not its actual fill).
func (f *BloomFilter) EstimatedFpr() float64 {
	k := float64(f.numHashes)
	n := float64(f.numItems)
	m := float64(f.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}

// EstimatedFalsePositiveCount is a metrics/logging convenience: the
// estimated FPR scaled by the configured item count. It never appears on
// the wire.
func (f *BloomFilter) EstimatedFalsePositiveCount() float64 {
	return f.EstimatedFpr() * float64(f.numItems)
}

// NumBits and NumHashes expose the derived (m, k) sizing for diagnostics
// and tests.
func (f *BloomFilter) NumBits() int   { return f.numBits }
func (f *BloomFilter) NumHashes() int { return f.numHashes }

// Export returns the filter's word array (a copy) plus the sizing needed to
// reconstruct it.
func (f *BloomFilter) Export() (numBits, numHashes int, words []uint32) {
	out := make([]uint32, len(f.words))
	copy(out, f.words)
	return f.numBits, f.numHashes, out
}

// ImportBloomFilter reconstructs filter state from a prior Export.
// numItems/fpr are not recoverable from the export and are left at their
// zero value; callers that need EstimatedFpr after import should
// reconstruct with NewBloomFilter and re-insert instead.
func ImportBloomFilter(numBits, numHashes int, words []uint32) *BloomFilter {
	out := make([]uint32, len(words))
	copy(out, words)
	return &BloomFilter{
		numBits:   numBits,
		numHashes: numHashes,
		words:     out,
	}
}
