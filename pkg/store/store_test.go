package store

import "testing"

func usersDescriptor() TableDescriptor {
	return TableDescriptor{
		Name:    "Users",
		KeyType: KeyTypeString,
		Schema: Schema{
			"name": {TypeString},
			"age":  {TypeInteger},
		},
	}
}

// TestInsertThenGetRoundTrips checks a basic insert/get round trip.
func TestInsertThenGetRoundTrips(t *testing.T) {
	s := NewStore(nil, nil)
	if err := s.NewTable(usersDescriptor()); err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	ok, err := s.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(25)}, "p1", nil)
	if err != nil || !ok {
		t.Fatalf("insert: ok=%v err=%v", ok, err)
	}
	data, found, err := s.Get("Users", "1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if data["name"] != "Bob" || data["age"] != int64(25) {
		t.Fatalf("unexpected data: %#v", data)
	}
	snap, err := s.Snapshot("Users")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	row := snap["1"]
	if row.Version.Clock != 1 || row.Version.Peer != "p1" {
		t.Fatalf("unexpected version: %#v", row.Version)
	}
}

// TestDeleteTombstonesRatherThanRemoves checks that delete leaves a tombstone.
func TestDeleteTombstonesRatherThanRemoves(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	_, _ = s.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(25)}, "p1", nil)

	ok, err := s.Delete("Users", "1", "p1", nil)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, found, _ := s.Get("Users", "1"); found {
		t.Fatalf("expected get to report absent after delete")
	}
	has, _ := s.HasKey("Users", "1")
	if has {
		t.Fatalf("expected hasKey false after delete")
	}
	snap, _ := s.Snapshot("Users")
	row := snap["1"]
	if row.Version.Clock != 2 || !row.Version.Tombstone {
		t.Fatalf("expected tombstone at clock 2, got %#v", row.Version)
	}
}

func TestInsertFailsOnLiveKey(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	_, _ = s.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(1)}, "p1", nil)
	_, err := s.Insert("Users", "1", map[string]any{"name": "Carl", "age": int64(2)}, "p1", nil)
	if err != ErrKeyExists {
		t.Fatalf("expected ErrKeyExists, got %v", err)
	}
}

func TestInsertSucceedsOverTombstone(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	_, _ = s.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(1)}, "p1", nil)
	_, _ = s.Delete("Users", "1", "p1", nil)
	ok, err := s.Insert("Users", "1", map[string]any{"name": "Rebirth", "age": int64(9)}, "p1", nil)
	if err != nil || !ok {
		t.Fatalf("expected insert to succeed over a tombstone: ok=%v err=%v", ok, err)
	}
}

func TestSetNoOpOnUnchangedData(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	_, _ = s.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(1)}, "p1", nil)
	before := s.Clock()
	ok, err := s.Set("Users", "1", map[string]any{"name": "Bob", "age": int64(1)}, "p1", nil)
	if err != nil || !ok {
		t.Fatalf("set: ok=%v err=%v", ok, err)
	}
	if s.Clock() != before {
		t.Fatalf("expected clock unchanged on no-op set, before=%d after=%d", before, s.Clock())
	}
}

func TestUpdateRequiresLiveRow(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	_, err := s.Update("Users", "1", func(cur map[string]any) map[string]any { return cur }, "p1", nil)
	if err != ErrNoLiveRow {
		t.Fatalf("expected ErrNoLiveRow, got %v", err)
	}
}

func TestUpdateAppliesFn(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	_, _ = s.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(1)}, "p1", nil)
	_, err := s.Update("Users", "1", func(cur map[string]any) map[string]any {
		cur["age"] = int64(2)
		return cur
	}, "p1", nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	data, _, _ := s.Get("Users", "1")
	if data["age"] != int64(2) {
		t.Fatalf("expected age 2, got %v", data["age"])
	}
}

// TestPeerShorthand checks that writing with peer == key stores
// "=", and reads observe the original peer via ResolvedPeer.
func TestPeerShorthand(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	_, _ = s.Insert("Users", "alice", map[string]any{"name": "A", "age": int64(1)}, "alice", nil)
	snap, _ := s.Snapshot("Users")
	row := snap["alice"]
	if row.Version.Peer != "=" {
		t.Fatalf("expected stored peer shorthand '=', got %q", row.Version.Peer)
	}
	if row.Version.ResolvedPeer("alice") != "alice" {
		t.Fatalf("expected resolved peer 'alice', got %q", row.Version.ResolvedPeer("alice"))
	}
}

func TestKeyTypeMismatch(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	_, err := s.Insert("Users", int64(1), map[string]any{"name": "Bob", "age": int64(1)}, "p1", nil)
	if err != ErrKeyTypeMismatch {
		t.Fatalf("expected ErrKeyTypeMismatch, got %v", err)
	}
}

func TestNewTableDuplicateRejected(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	if err := s.NewTable(usersDescriptor()); err != ErrTableExists {
		t.Fatalf("expected ErrTableExists, got %v", err)
	}
}

func TestSubscribeFanoutOrder(t *testing.T) {
	var order []string
	s := NewStore(func(table string, key any, data map[string]any) {
		order = append(order, "db")
	}, nil)
	desc := usersDescriptor()
	desc.OnChange = func(key any, data map[string]any) {
		order = append(order, "table")
	}
	_ = s.NewTable(desc)
	sub, err := s.Subscribe("Users", func(key any, data map[string]any) {
		order = append(order, "subscriber")
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	_, _ = s.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(1)}, "p1", nil)
	want := []string{"db", "table", "subscriber"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSubscribeCloseStopsDelivery(t *testing.T) {
	s := NewStore(nil, nil)
	_ = s.NewTable(usersDescriptor())
	calls := 0
	sub, _ := s.Subscribe("Users", func(key any, data map[string]any) { calls++ })
	sub.Close()
	_, _ = s.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(1)}, "p1", nil)
	if calls != 0 {
		t.Fatalf("expected no delivery after Close, got %d calls", calls)
	}
}

func TestMergeContextSuppressesFanout(t *testing.T) {
	calls := 0
	s := NewStore(func(string, any, map[string]any) { calls++ }, nil)
	_ = s.NewTable(usersDescriptor())
	_, _ = s.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(1)}, "p1", &MergeContext{SuppressFanout: true})
	if calls != 0 {
		t.Fatalf("expected fanout suppressed, got %d calls", calls)
	}
}

func TestValidatorRejectsWithoutMutation(t *testing.T) {
	desc := usersDescriptor()
	desc.Validate = func(key any, data map[string]any) bool {
		age, _ := data["age"].(int64)
		return age >= 0 && age < 150
	}
	s := NewStore(nil, nil)
	_ = s.NewTable(desc)
	ok, err := s.Set("Users", "1", map[string]any{"name": "Bob", "age": int64(999)}, "p1", nil)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok {
		t.Fatalf("expected validator rejection to return false")
	}
	if has, _ := s.HasKey("Users", "1"); has {
		t.Fatalf("expected no mutation on validator rejection")
	}
}
