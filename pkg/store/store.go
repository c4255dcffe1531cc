package store

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Store is the per-database table registry plus the local Lamport clock.
// It is safe for concurrent use: a gossip-ingest goroutine may race an
// application write, so every operation takes the store's lock. Update
// releases it while its fn runs and takes it again for the write.
type Store struct {
	mu      sync.Mutex
	clock   uint64
	tables  map[string]*Table
	onChange ChangeFuncByTable
	logger  *logrus.Logger
}

// ChangeFuncByTable is the database-level onChange hook: it additionally
// receives the table name, since a single callback covers every table.
type ChangeFuncByTable func(table string, key any, data map[string]any)

// NewStore constructs an empty store. dbOnChange may be nil.
func NewStore(dbOnChange ChangeFuncByTable, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		tables:   make(map[string]*Table),
		onChange: dbOnChange,
		logger:   logger,
	}
}

// Clock returns the store's current Lamport clock value.
func (s *Store) Clock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// NewTable declares a table. It fails if a table with that name already
// exists.
func (s *Store) NewTable(desc TableDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tables[desc.Name]; exists {
		return ErrTableExists
	}
	t, err := newTable(desc)
	if err != nil {
		return err
	}
	s.tables[desc.Name] = t
	return nil
}

// TableNames returns every declared table name.
func (s *Store) TableNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	return names
}

// TableDescriptor returns the named table's declaration.
func (s *Store) TableDescriptor(name string) (TableDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return TableDescriptor{}, false
	}
	return t.Descriptor(), true
}

func (s *Store) table(name string) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, ErrTableNotFound
	}
	return t, nil
}

func (s *Store) checkKey(t *Table, key any) error {
	if !KeyMatches(t.desc.KeyType, key) {
		return ErrKeyTypeMismatch
	}
	return nil
}

// peerForWrite applies the "=" shorthand: when the table is
// string-keyed and peer equals the key literally, the stored peer becomes
// the literal "=".
func peerForWrite(t *Table, key any, peer string) string {
	if t.desc.KeyType == KeyTypeString {
		if ks, ok := key.(string); ok && ks == peer {
			return "="
		}
	}
	return peer
}

// bumpLocalClock advances the local clock by one and returns the new value. Caller must hold s.mu.
func (s *Store) bumpLocalClock() uint64 {
	s.clock++
	return s.clock
}

// observeClock folds an incoming clock into the local one. Caller must hold s.mu.
func (s *Store) observeClock(incoming uint64) {
	if incoming > s.clock {
		s.clock = incoming
	}
}

// Insert writes data at key only if no live row currently exists there;
// otherwise it is identical to Set.
func (s *Store) Insert(table string, key any, data map[string]any, peer string, ctx *MergeContext) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return false, err
	}
	if err := s.checkKey(t, key); err != nil {
		return false, err
	}
	if existing, ok := t.rows[key]; ok && !existing.IsTombstone() {
		return false, ErrKeyExists
	}
	return s.setLocked(t, table, key, data, peer, ctx)
}

// Set applies a local write: schema-copies the data, runs the optional
// validator, skips the write entirely (returning true, no mutation) when
// the projected data is unchanged from the current live row, otherwise
// bumps the clock and stores the new version.
func (s *Store) Set(table string, key any, data map[string]any, peer string, ctx *MergeContext) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return false, err
	}
	if err := s.checkKey(t, key); err != nil {
		return false, err
	}
	return s.setLocked(t, table, key, data, peer, ctx)
}

func (s *Store) setLocked(t *Table, tableName string, key any, data map[string]any, peer string, ctx *MergeContext) (bool, error) {
	projected, err := SchemaCopy(t.desc.Schema, data)
	if err != nil {
		return false, err
	}
	if t.desc.Validate != nil && !t.desc.Validate(key, projected) {
		return false, nil
	}

	existing, hasExisting := t.rows[key]
	if hasExisting && !existing.IsTombstone() && ShallowEqual(existing.Data, projected) {
		return true, nil
	}

	clock := s.bumpLocalClock()
	row := Row{
		Data: projected,
		Version: Version{
			Clock: clock,
			Peer:  peerForWrite(t, key, peer),
		},
	}
	t.rows[key] = row
	s.dispatch(t, tableName, key, row.Data, ctx)
	return true, nil
}

// Update feeds fn a shallow copy of the current live data and delegates
// the returned map to Set. It fails if no live row exists.
func (s *Store) Update(table string, key any, fn UpdateFunc, peer string, ctx *MergeContext) (bool, error) {
	s.mu.Lock()
	t, err := s.table(table)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if err := s.checkKey(t, key); err != nil {
		s.mu.Unlock()
		return false, err
	}
	existing, ok := t.rows[key]
	if !ok || existing.IsTombstone() {
		s.mu.Unlock()
		return false, ErrNoLiveRow
	}
	current := existing.Clone().Data
	s.mu.Unlock()

	next := fn(current)
	return s.Set(table, key, next, peer, ctx)
}

// Get returns a shallow copy of the row's data, or (nil, false) if the row
// is missing or tombstoned.
func (s *Store) Get(table string, key any) (map[string]any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return nil, false, err
	}
	row, ok := t.rows[key]
	if !ok || row.IsTombstone() {
		return nil, false, nil
	}
	return row.Clone().Data, true, nil
}

// HasKey reports whether a live (non-tombstone) row exists.
func (s *Store) HasKey(table string, key any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return false, err
	}
	row, ok := t.rows[key]
	return ok && !row.IsTombstone(), nil
}

// Delete writes a tombstone: bumps the clock and fires callbacks only
// when state actually changed; deleting an already-tombstoned row is a
// no-op.
func (s *Store) Delete(table string, key any, peer string, ctx *MergeContext) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return false, err
	}
	if err := s.checkKey(t, key); err != nil {
		return false, err
	}

	existing, hasExisting := t.rows[key]
	if hasExisting && existing.IsTombstone() {
		return true, nil
	}

	clock := s.bumpLocalClock()
	row := Row{
		Data: nil,
		Version: Version{
			Clock:     clock,
			Peer:      peerForWrite(t, key, peer),
			Tombstone: true,
		},
	}
	t.rows[key] = row
	s.dispatch(t, table, key, nil, ctx)
	return true, nil
}

// dispatch runs the database-level callback, then the table-level
// callback, then every subscriber, in that order, unless ctx suppresses fanout (bulk import).
func (s *Store) dispatch(t *Table, tableName string, key any, data map[string]any, ctx *MergeContext) {
	if !fanoutEnabled(ctx) {
		return
	}
	if s.onChange != nil {
		invokeContained(func() { s.onChange(tableName, key, data) })
	}
	if t.desc.OnChange != nil {
		invokeContained(func() { t.desc.OnChange(key, data) })
	}
	t.fanoutSubscribers(key, data)
}

// Subscribe registers cb for change notifications on table. The returned
// Subscription's Close unregisters it.
func (s *Store) Subscribe(table string, cb ChangeFunc) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	return t.subscribe(cb), nil
}

// Keys enumerates every key with a live row in table.
func (s *Store) Keys(table string) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	keys := make([]any, 0, len(t.rows))
	for k, row := range t.rows {
		if !row.IsTombstone() {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Snapshot returns a read-only copy of every row (live and tombstoned) in
// table, keyed by the typed primary key.
func (s *Store) Snapshot(table string) (map[any]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	out := make(map[any]Row, len(t.rows))
	for k, row := range t.rows {
		out[k] = row.Clone()
	}
	return out, nil
}
