package gossipkv

import (
	"testing"
	"time"

	"github.com/obsidian-reach/gossipkv/pkg/broker"
	"github.com/obsidian-reach/gossipkv/pkg/hostenv"
	"github.com/obsidian-reach/gossipkv/pkg/store"
)

// fakeTimer/fakeLoop give tests deterministic, synchronous control over
// the sync engine's debounce and discovery timers, the same harness
// shape pkg/gossip's own tests use.
type fakeTimer struct {
	at        time.Time
	cb        func()
	fired     bool
	cancelled bool
}

type fakeLoop struct {
	now    time.Time
	timers []*fakeTimer
	ticks  []func()
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{now: time.Unix(1_700_000_000, 0)}
}

func (f *fakeLoop) NewTimer(delay time.Duration, cb func()) func() {
	t := &fakeTimer{at: f.now.Add(delay), cb: cb}
	f.timers = append(f.timers, t)
	return func() { t.cancelled = true }
}

func (f *fakeLoop) Now() time.Time { return f.now }

func (f *fakeLoop) OnFrameTick(cb func()) func() {
	f.ticks = append(f.ticks, cb)
	return func() {}
}

func (f *fakeLoop) Advance(d time.Duration) {
	f.now = f.now.Add(d)
	for _, t := range f.timers {
		if !t.fired && !t.cancelled && !t.at.After(f.now) {
			t.fired = true
			t.cb()
		}
	}
	for _, tick := range f.ticks {
		tick()
	}
}

type fakeIdentity struct {
	name, peerID string
}

func (f fakeIdentity) PlayerName() string { return f.name }
func (f fakeIdentity) PeerID() string     { return f.peerID }

var _ hostenv.Loop = (*fakeLoop)(nil)
var _ hostenv.Identity = fakeIdentity{}

func usersTable() TableConfig {
	return TableConfig{
		Name:    "Users",
		KeyType: store.KeyTypeString,
		Schema: store.Schema{
			"name": {store.TypeString},
			"age":  {store.TypeInteger},
		},
	}
}

func TestCreateRejectsBadClusterID(t *testing.T) {
	if _, err := Create(DatabaseConfig{ClusterID: "", Namespace: "ns"}); err == nil {
		t.Fatalf("expected error for empty clusterId")
	}
	if _, err := Create(DatabaseConfig{ClusterID: "this-id-is-too-long-for-sure", Namespace: "ns"}); err == nil {
		t.Fatalf("expected error for over-length clusterId")
	}
	if _, err := Create(DatabaseConfig{ClusterID: "ok", Namespace: ""}); err == nil {
		t.Fatalf("expected error for empty namespace")
	}
}

func TestCreateGetDropLifecycle(t *testing.T) {
	hub := broker.NewMemoryHub()
	loop := newFakeLoop()
	inst, err := Create(DatabaseConfig{
		ClusterID:   "lifecycle",
		Namespace:   "ns",
		Broker:      broker.NewMemoryBroker(hub, "peer-a"),
		Identity:    fakeIdentity{name: "a", peerID: "peer-a"},
		Environment: hostenv.AlwaysShout,
		Loop:        loop,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer Drop("lifecycle")

	if _, ok := Get("lifecycle"); !ok {
		t.Fatalf("expected Get to find the registered instance")
	}
	if _, err := Create(DatabaseConfig{ClusterID: "lifecycle", Namespace: "ns"}); err == nil {
		t.Fatalf("expected duplicate clusterId to be rejected")
	}

	if err := Drop("lifecycle"); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, ok := Get("lifecycle"); ok {
		t.Fatalf("expected Get to fail after Drop")
	}
	if err := Drop("lifecycle"); err == nil {
		t.Fatalf("expected double Drop to fail")
	}
	_ = inst
}

func TestInsertGetDeleteRoundTrip(t *testing.T) {
	hub := broker.NewMemoryHub()
	inst, err := Create(DatabaseConfig{
		ClusterID:   "crud",
		Namespace:   "ns",
		Broker:      broker.NewMemoryBroker(hub, "peer-a"),
		Identity:    fakeIdentity{name: "a", peerID: "peer-a"},
		Environment: hostenv.AlwaysShout,
		Loop:        newFakeLoop(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer Drop("crud")

	if err := inst.NewTable(usersTable()); err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	if ok, err := inst.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(25)}); err != nil || !ok {
		t.Fatalf("Insert: ok=%v err=%v", ok, err)
	}
	data, found, err := inst.Get("Users", "1")
	if err != nil || !found || data["name"] != "Bob" {
		t.Fatalf("Get after insert: data=%#v found=%v err=%v", data, found, err)
	}

	if ok, err := inst.Delete("Users", "1"); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if _, found, _ := inst.Get("Users", "1"); found {
		t.Fatalf("expected row to be gone after delete")
	}
	if has, _ := inst.HasKey("Users", "1"); has {
		t.Fatalf("expected HasKey false after delete")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	hub := broker.NewMemoryHub()
	src, err := Create(DatabaseConfig{
		ClusterID:   "export-src",
		Namespace:   "ns",
		Broker:      broker.NewMemoryBroker(hub, "peer-a"),
		Identity:    fakeIdentity{name: "a", peerID: "peer-a"},
		Environment: hostenv.AlwaysShout,
		Loop:        newFakeLoop(),
	})
	if err != nil {
		t.Fatalf("Create src: %v", err)
	}
	defer Drop("export-src")
	if err := src.NewTable(usersTable()); err != nil {
		t.Fatalf("NewTable src: %v", err)
	}
	if _, err := src.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(25)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	exp, err := src.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst, err := Create(DatabaseConfig{
		ClusterID:   "export-dst",
		Namespace:   "ns",
		Broker:      broker.NewMemoryBroker(hub, "peer-b"),
		Identity:    fakeIdentity{name: "b", peerID: "peer-b"},
		Environment: hostenv.AlwaysShout,
		Loop:        newFakeLoop(),
	})
	if err != nil {
		t.Fatalf("Create dst: %v", err)
	}
	defer Drop("export-dst")
	if err := dst.NewTable(usersTable()); err != nil {
		t.Fatalf("NewTable dst: %v", err)
	}

	ok, warnings, err := dst.Import(exp)
	if err != nil || !ok {
		t.Fatalf("Import: ok=%v err=%v warnings=%v", ok, err, warnings)
	}

	data, found, err := dst.Get("Users", "1")
	if err != nil || !found || data["name"] != "Bob" || data["age"] != int64(25) {
		t.Fatalf("expected imported row, got data=%#v found=%v err=%v", data, found, err)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	hub := broker.NewMemoryHub()
	inst, err := Create(DatabaseConfig{
		ClusterID:   "codec",
		Namespace:   "ns",
		Broker:      broker.NewMemoryBroker(hub, "peer-a"),
		Identity:    fakeIdentity{name: "a", peerID: "p1"},
		Environment: hostenv.AlwaysShout,
		Loop:        newFakeLoop(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer Drop("codec")
	if err := inst.NewTable(usersTable()); err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if _, err := inst.Insert("Users", "1", map[string]any{"name": "Bob", "age": int64(25)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	text, err := inst.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := "{1;Users{1{{19;Bob}1;p1}}}"
	if text != want {
		t.Fatalf("Serialize = %q, want %q", text, want)
	}

	other, err := Create(DatabaseConfig{
		ClusterID:   "codec-2",
		Namespace:   "ns",
		Broker:      broker.NewMemoryBroker(hub, "peer-b"),
		Identity:    fakeIdentity{name: "b", peerID: "p2"},
		Environment: hostenv.AlwaysShout,
		Loop:        newFakeLoop(),
	})
	if err != nil {
		t.Fatalf("Create other: %v", err)
	}
	defer Drop("codec-2")
	if err := other.NewTable(usersTable()); err != nil {
		t.Fatalf("NewTable other: %v", err)
	}
	if warnings, err := other.Deserialize(text); err != nil || len(warnings) != 0 {
		t.Fatalf("Deserialize: warnings=%v err=%v", warnings, err)
	}
	data, found, err := other.Get("Users", "1")
	if err != nil || !found || data["name"] != "Bob" {
		t.Fatalf("expected deserialized row, got data=%#v found=%v err=%v", data, found, err)
	}
}

func TestGetSchemaSortedAndUnsorted(t *testing.T) {
	hub := broker.NewMemoryHub()
	inst, err := Create(DatabaseConfig{
		ClusterID:   "schema",
		Namespace:   "ns",
		Broker:      broker.NewMemoryBroker(hub, "peer-a"),
		Identity:    fakeIdentity{name: "a", peerID: "peer-a"},
		Environment: hostenv.AlwaysShout,
		Loop:        newFakeLoop(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer Drop("schema")
	if err := inst.NewTable(usersTable()); err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	fields, schema, ok := inst.GetSchema("Users", true)
	if !ok {
		t.Fatalf("expected Users schema to be found")
	}
	if len(fields) != 2 || fields[0] != "age" || fields[1] != "name" {
		t.Fatalf("expected sorted fields [age name], got %v", fields)
	}
	if len(schema) != 2 {
		t.Fatalf("expected schema with 2 fields, got %v", schema)
	}

	unsorted, _, ok := inst.GetSchema("Users", false)
	if !ok || len(unsorted) != 2 {
		t.Fatalf("expected 2 unsorted fields, got %v ok=%v", unsorted, ok)
	}

	if _, _, ok := inst.GetSchema("Unknown", true); ok {
		t.Fatalf("expected unknown table to report ok=false")
	}
}

func TestGetPeerIDFromGUID(t *testing.T) {
	hub := broker.NewMemoryHub()
	aLoop := newFakeLoop()
	a, err := Create(DatabaseConfig{
		ClusterID:   "guid-a",
		Namespace:   "ns",
		Broker:      broker.NewMemoryBroker(hub, "peer-a"),
		Identity:    fakeIdentity{name: "Aragorn", peerID: "peer-a"},
		Environment: hostenv.AlwaysShout,
		Loop:        aLoop,
	})
	if err != nil {
		t.Fatalf("Create a: %v", err)
	}
	defer Drop("guid-a")

	bLoop := newFakeLoop()
	b, err := Create(DatabaseConfig{
		ClusterID:   "guid-b",
		Namespace:   "ns",
		Broker:      broker.NewMemoryBroker(hub, "peer-b"),
		Identity:    fakeIdentity{name: "Legolas", peerID: "peer-b"},
		Environment: hostenv.AlwaysShout,
		Loop:        bLoop,
	})
	if err != nil {
		t.Fatalf("Create b: %v", err)
	}
	defer Drop("guid-b")

	a.DiscoverPeers()
	bLoop.Advance(1100 * time.Millisecond) // B's debounce timer fires, it unicasts its response
	aLoop.Advance(1100 * time.Millisecond) // A's debounce timer fires, it records the response

	peerID, ok := a.GetPeerIDFromGUID("Legolas")
	if !ok || peerID != "peer-b" {
		t.Fatalf("expected to resolve Legolas to peer-b, got peerID=%q ok=%v", peerID, ok)
	}
	if _, ok := a.GetPeerIDFromGUID("Gimli"); ok {
		t.Fatalf("expected unknown player name to report ok=false")
	}
	_ = b
}
