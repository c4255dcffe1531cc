package filter

import "testing"

func TestBucketedHashSetInsertMatches(t *testing.T) {
	s := NewBucketedHashSet(16, 0)
	s.Insert("alice", "1", "true")
	if !s.Matches("alice", "1", "true") {
		t.Fatalf("expected match after insert")
	}
	if s.Matches("alice", "1", "false") {
		t.Fatalf("did not expect match for a different value tuple")
	}
}

func TestBucketedHashSetCommutativity(t *testing.T) {
	// any permutation of inserts yields the same bucket array.
	a := NewBucketedHashSet(8, 3)
	b := NewBucketedHashSet(8, 3)

	a.Insert("k1", "v1")
	a.Insert("k2", "v2")
	a.Insert("k3")

	b.Insert("k3")
	b.Insert("k2", "v2")
	b.Insert("k1", "v1")

	_, _, bucketsA := a.Export()
	_, _, bucketsB := b.Export()
	if len(bucketsA) != len(bucketsB) {
		t.Fatalf("bucket length mismatch")
	}
	for i := range bucketsA {
		if bucketsA[i] != bucketsB[i] {
			t.Fatalf("bucket %d diverged: %d != %d", i, bucketsA[i], bucketsB[i])
		}
	}
}

func TestBucketedHashSetExportImportRoundTrip(t *testing.T) {
	s := NewBucketedHashSet(4, 9)
	s.Insert("x", "y")
	seed, n, buckets := s.Export()

	dst := NewBucketedHashSet(4, 0)
	if err := dst.Import(seed, n, buckets); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !dst.Matches("x", "y") {
		t.Fatalf("imported set should match the same insert")
	}
}

func TestBucketedHashSetImportLengthMismatch(t *testing.T) {
	s := NewBucketedHashSet(4, 0)
	if err := s.Import(0, 5, make([]uint32, 3)); err == nil {
		t.Fatalf("expected error on bucket length mismatch")
	}
}

func TestBucketedHashSetClear(t *testing.T) {
	s := NewBucketedHashSet(4, 0)
	s.Insert("a")
	s.Clear()
	if s.Matches("a") {
		t.Fatalf("expected clear to remove matches")
	}
}

func TestBucketedHashSetDiff(t *testing.T) {
	a := NewBucketedHashSet(8, 0)
	b := NewBucketedHashSet(8, 0)
	a.Insert("only-in-a")
	if diffs := a.Diff(b); len(diffs) == 0 {
		t.Fatalf("expected at least one differing bucket")
	}
	b.Insert("only-in-a")
	if diffs := a.Diff(b); len(diffs) != 0 {
		t.Fatalf("expected no differing buckets after matching insert, got %v", diffs)
	}
}
