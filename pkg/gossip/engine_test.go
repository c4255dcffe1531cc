package gossip

import (
	"testing"
	"time"

	"github.com/obsidian-reach/gossipkv/pkg/broker"
	"github.com/obsidian-reach/gossipkv/pkg/hostenv"
	"github.com/obsidian-reach/gossipkv/pkg/metrics"
	"github.com/obsidian-reach/gossipkv/pkg/store"
)

func usersDescriptor() store.TableDescriptor {
	return store.TableDescriptor{
		Name:    "Users",
		KeyType: store.KeyTypeString,
		Schema: store.Schema{
			"name": {store.TypeString},
			"age":  {store.TypeInteger},
		},
	}
}

type harness struct {
	store   *store.Store
	loop    *fakeLoop
	engine  *Engine
	metrics *metrics.Recorder
}

func newHarness(t *testing.T, hub *broker.MemoryHub, peerID string) *harness {
	t.Helper()
	st := store.NewStore(nil, nil)
	if err := st.NewTable(usersDescriptor()); err != nil {
		t.Fatalf("new table: %v", err)
	}
	loop := newFakeLoop()
	br := broker.NewMemoryBroker(hub, peerID)
	rec := metrics.New()
	e := New(st, br, fakeIdentity{name: peerID, peerID: peerID}, hostenv.AlwaysShout, loop, nil, rec, nil, DefaultConfig())
	return &harness{store: st, loop: loop, engine: e, metrics: rec}
}

// step advances every harness's loop by one debounce window, letting any
// messages already in flight finish dispatching and react.
func step(loops ...*fakeLoop) {
	for _, l := range loops {
		l.Advance(1100 * time.Millisecond)
	}
}

func TestDigestSyncConverges(t *testing.T) {
	hub := broker.NewMemoryHub()
	a := newHarness(t, hub, "A")
	b := newHarness(t, hub, "B")

	if _, err := a.store.Insert("Users", "alice", map[string]any{"name": "A", "age": int64(1)}, "A", nil); err != nil {
		t.Fatalf("insert on A: %v", err)
	}
	if _, err := b.store.Insert("Users", "alice", map[string]any{"name": "B", "age": int64(2)}, "B", nil); err != nil {
		t.Fatalf("insert on B: %v", err)
	}

	// B's write has the same clock (1) as A's but a lexicographically
	// greater peer ID, so it must win on both replicas once digests
	// cross.
	b.engine.SyncNow()

	step(a.loop) // A processes the inbound digest, requests the row
	step(b.loop) // B processes RequestRows, sends Rows back
	step(a.loop) // A processes Rows, merges B's version

	data, found, err := a.store.Get("Users", "alice")
	if err != nil || !found {
		t.Fatalf("expected alice to be live on A, found=%v err=%v", found, err)
	}
	if data["name"] != "B" || data["age"] != int64(2) {
		t.Fatalf("expected A to converge to B's write, got %#v", data)
	}
}

func TestDebounceCoalescesDuplicateDigests(t *testing.T) {
	hub := broker.NewMemoryHub()
	a := newHarness(t, hub, "A")
	b := newHarness(t, hub, "B")

	if _, err := b.store.Insert("Users", "alice", map[string]any{"name": "B", "age": int64(2)}, "B", nil); err != nil {
		t.Fatalf("insert on B: %v", err)
	}

	// Two digests from B arrive on A before A's debounce timer fires;
	// only one should ever be dispatched.
	b.engine.SyncNow()
	b.engine.SyncNow()

	step(a.loop)

	snap := a.metrics.Snapshot()
	if snap.DigestsReceived != 1 {
		t.Fatalf("expected exactly one dispatched digest, got %v", snap.DigestsReceived)
	}
	if snap.DebounceCoalesced != 1 {
		t.Fatalf("expected exactly one coalesced duplicate, got %v", snap.DebounceCoalesced)
	}

	// A's request for the missing row still needs one more round to
	// reach B and come back.
	step(b.loop)
	step(a.loop)

	if data, found, _ := a.store.Get("Users", "alice"); !found || data["name"] != "B" {
		t.Fatalf("expected A to have converged after the coalesced digest, found=%v data=%#v", found, data)
	}
}
