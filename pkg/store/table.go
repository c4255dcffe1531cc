package store

import (
	"fmt"
	"sync"
)

// ChangeFunc is a subscriber or table/database-level change callback. key
// is the typed primary key; data is nil when the row is now a tombstone.
type ChangeFunc func(key any, data map[string]any)

// ValidateFunc is a table's optional write-time predicate: returning false
// silently skips the write.
type ValidateFunc func(key any, data map[string]any) bool

// UpdateFunc is fed a shallow copy of a row's current data and must return
// the new data to write.
type UpdateFunc func(current map[string]any) map[string]any

// TableDescriptor declares a table at creation time.
type TableDescriptor struct {
	Name     string
	KeyType  KeyType
	Schema   Schema // nil: accept any primitive field by name
	Validate ValidateFunc
	OnChange ChangeFunc
}

// Subscription is the handle returned by Store.Subscribe. Only Close
// unregisters the callback: the table holds the callback itself, so
// dropping the handle without calling Close leaves it registered.
type Subscription struct {
	table *Table
	id    uint64
}

// Close unregisters the subscription. It is idempotent.
func (s *Subscription) Close() error {
	if s == nil || s.table == nil {
		return nil
	}
	s.table.mu.Lock()
	delete(s.table.subscribers, s.id)
	s.table.mu.Unlock()
	return nil
}

// Table is a schema-validated row registry keyed by a single typed primary
// key.
type Table struct {
	desc TableDescriptor

	mu          sync.Mutex
	rows        map[any]Row
	subscribers map[uint64]ChangeFunc
	nextSubID   uint64
}

func newTable(desc TableDescriptor) (*Table, error) {
	if desc.Name == "" {
		return nil, fmt.Errorf("store: table name must not be empty")
	}
	if err := desc.Schema.ValidateDeclaration(); err != nil {
		return nil, err
	}
	return &Table{
		desc:        desc,
		rows:        make(map[any]Row),
		subscribers: make(map[uint64]ChangeFunc),
	}, nil
}

// Descriptor returns a copy of the table's declaration.
func (t *Table) Descriptor() TableDescriptor {
	return t.desc
}

func (t *Table) subscribe(cb ChangeFunc) *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSubID++
	id := t.nextSubID
	t.subscribers[id] = cb
	return &Subscription{table: t, id: id}
}

// fanoutSubscribers calls every currently registered subscriber. It takes
// a snapshot of the subscriber list first so a callback unsubscribing
// itself (or another subscriber) mid-iteration cannot fault the loop.
func (t *Table) fanoutSubscribers(key any, data map[string]any) {
	t.mu.Lock()
	cbs := make([]ChangeFunc, 0, len(t.subscribers))
	for _, cb := range t.subscribers {
		cbs = append(cbs, cb)
	}
	t.mu.Unlock()
	for _, cb := range cbs {
		invokeContained(func() { cb(key, data) })
	}
}

// invokeContained runs fn and recovers a panic: a callback that panics is
// contained and the enclosing operation continues.
func invokeContained(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
