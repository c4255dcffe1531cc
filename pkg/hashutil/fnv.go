// Package hashutil provides the single deterministic hash primitive shared
// by every probabilistic structure in the store: bucketed divergence sets,
// Bloom filters, and Cuckoo filters. Determinism across peers (same bytes in,
// same uint32 out, on any platform) matters more here than raw speed, which
// is why this is a hand-rolled FNV-1a variant rather than hash/fnv: this
// mixes a caller-supplied seed into the offset basis before the standard
// FNV-1a loop, something hash/fnv has no hook for.
package hashutil

const (
	offsetBasis uint32 = 2166136261
	primeFNV    uint32 = 16777619
)

// FNV1a hashes s with the given seed: h := offsetBasis + seed*13, then the
// usual FNV-1a byte loop (XOR then multiply). Varying seed is how callers
// derive independent hash functions from one primitive (Bloom's k rounds,
// a bucketed set's per-value salting).
func FNV1a(s string, seed uint32) uint32 {
	h := offsetBasis + seed*13
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= primeFNV
	}
	return h
}

// FNV1aBytes is the []byte counterpart of FNV1a, used where a caller already
// holds an encoded value and would otherwise pay a string conversion.
func FNV1aBytes(b []byte, seed uint32) uint32 {
	h := offsetBasis + seed*13
	for _, c := range b {
		h ^= uint32(c)
		h *= primeFNV
	}
	return h
}
