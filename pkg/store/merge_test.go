package store

import "testing"

// TestTwoReplicasConvergeOnTieBreak checks that two
// replicas both write at clock 1, and the peer with the lexicographically
// greater ID wins.
func TestTwoReplicasConvergeOnTieBreak(t *testing.T) {
	a := NewStore(nil, nil)
	b := NewStore(nil, nil)
	desc := usersDescriptor()
	_ = a.NewTable(desc)
	_ = b.NewTable(desc)

	_, _ = a.Insert("Users", "alice", map[string]any{"name": "A", "age": int64(1)}, "peerA", nil)
	_, _ = b.Insert("Users", "alice", map[string]any{"name": "B", "age": int64(2)}, "peerB", nil)

	// A sends its row to B as an incoming merge.
	snapA, _ := a.Snapshot("Users")
	rowA := snapA["alice"]
	applied, warning, err := b.Merge("Users", "alice", rowA, nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if warning != "" {
		t.Fatalf("unexpected warning: %s", warning)
	}

	// peerB > peerA lexicographically, so B's own row should win and A's
	// incoming row should not apply.
	if applied {
		t.Fatalf("expected peerA's row to lose against peerB's higher peer id at the same clock")
	}
	data, _, _ := b.Get("Users", "alice")
	if data["name"] != "B" {
		t.Fatalf("expected B's data to survive, got %#v", data)
	}

	// And B's row propagated to A should win there.
	snapB, _ := b.Snapshot("Users")
	rowB := snapB["alice"]
	applied, _, err = a.Merge("Users", "alice", rowB, nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !applied {
		t.Fatalf("expected peerB's row to win on A")
	}
	data, _, _ = a.Get("Users", "alice")
	if data["name"] != "B" {
		t.Fatalf("expected A to converge to B's data, got %#v", data)
	}
}

// TestTombstoneMonotonicity checks that a merge with a lower
// clock than the local tombstone cannot resurrect the row.
func TestTombstoneMonotonicity(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	_, _ = s.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(1)}, "p1", nil) // clock 1
	_, _ = s.Delete("Users", "1", "p1", nil)                                                 // clock 2, tombstone

	stale := Row{
		Data:    map[string]any{"name": "Zombie", "age": int64(2)},
		Version: Version{Clock: 1, Peer: "p1"},
	}
	applied, _, err := s.Merge("Users", "1", stale, nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if applied {
		t.Fatalf("expected stale non-tombstone write to lose against the tombstone")
	}
	if _, found, _ := s.Get("Users", "1"); found {
		t.Fatalf("row must remain tombstoned")
	}
}

func TestMergeNewerLiveRowResurrectsTombstone(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	_, _ = s.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(1)}, "p1", nil) // clock 1
	_, _ = s.Delete("Users", "1", "p1", nil)                                                 // clock 2

	fresh := Row{
		Data:    map[string]any{"name": "Reborn", "age": int64(3)},
		Version: Version{Clock: 3, Peer: "p1"},
	}
	applied, warning, err := s.Merge("Users", "1", fresh, nil)
	if err != nil || warning != "" {
		t.Fatalf("merge: applied=%v warning=%q err=%v", applied, warning, err)
	}
	if !applied {
		t.Fatalf("expected newer live write to resurrect the tombstone")
	}
	data, found, _ := s.Get("Users", "1")
	if !found || data["name"] != "Reborn" {
		t.Fatalf("expected resurrection, got found=%v data=%#v", found, data)
	}
}

func TestMergeRowLevelValidationWarnings(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())

	bad := Row{
		Data:    map[string]any{"name": "Bob", "age": "not-an-integer"},
		Version: Version{Clock: 1, Peer: "p1"},
	}
	applied, warning, err := s.Merge("Users", "1", bad, nil)
	if err != nil {
		t.Fatalf("merge should not error for a row-level validation failure: %v", err)
	}
	if applied {
		t.Fatalf("malformed row must not apply")
	}
	if warning == "" {
		t.Fatalf("expected a non-empty warning for malformed row")
	}
}

func TestMergeUnknownTableIsFatalForTheRow(t *testing.T) {
	s := NewStore(nil, nil)
	_, _, err := s.Merge("DoesNotExist", "1", Row{Version: Version{Clock: 1, Peer: "p1", Tombstone: true}}, nil)
	if err != ErrTableNotFound {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

func TestMergeEmptyPeerRejected(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	applied, warning, err := s.Merge("Users", "1", Row{Version: Version{Clock: 1, Peer: "", Tombstone: true}}, nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if applied || warning == "" {
		t.Fatalf("expected rejection with warning for empty peer, got applied=%v warning=%q", applied, warning)
	}
}
