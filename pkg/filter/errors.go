package filter

import "errors"

var (
	// errBucketLengthMismatch is returned by BucketedHashSet.Import when the
	// incoming bucket slice length disagrees with the declared numBuckets.
	errBucketLengthMismatch = errors.New("filter: bucket export length mismatch")

	// ErrFilterFull is returned by CuckooFilter.Insert when eviction could
	// not place the item after maxKicks random walks.
	ErrFilterFull = errors.New("filter: cuckoo filter full, insert failed after max kicks")
)
