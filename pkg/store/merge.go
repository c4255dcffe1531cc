package store

import "fmt"

// Merge applies a row received from a peer through the LWW predicate and
// the per-row import validation pipeline: key type must match, the version
// must carry a non-negative clock and non-empty peer, a tombstone flag (if
// present) must be literally true, and non-tombstone data must pass schema
// copy and the table's validator.
//
// A non-nil error means the table itself is unknown to this store; the
// caller (sync engine) treats that as a network-data error and drops the
// whole row without retrying. A non-empty warning means the row itself
// was malformed or rejected; the caller logs it and continues with the
// rest of the batch.
func (s *Store) Merge(table string, key any, incoming Row, ctx *MergeContext) (applied bool, warning string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return false, "", err
	}
	if err := s.checkKey(t, key); err != nil {
		return false, fmt.Sprintf("store: merge %v: %v", key, err), nil
	}
	if incoming.Version.Peer == "" {
		return false, fmt.Sprintf("store: merge %v: empty peer in version", key), nil
	}
	if incoming.Version.Tombstone && incoming.Data != nil {
		return false, fmt.Sprintf("store: merge %v: tombstone carries data", key), nil
	}

	var projected map[string]any
	if !incoming.Version.Tombstone {
		projected, err = SchemaCopy(t.desc.Schema, incoming.Data)
		if err != nil {
			return false, fmt.Sprintf("store: merge %v: %v", key, err), nil
		}
		if t.desc.Validate != nil && !t.desc.Validate(key, projected) {
			return false, fmt.Sprintf("store: merge %v: rejected by validator", key), nil
		}
	}

	existing, hasExisting := t.rows[key]
	resolvedIncomingPeer := incoming.Version.ResolvedPeer(key)
	resolvedExistingPeer := ""
	if hasExisting {
		resolvedExistingPeer = existing.Version.ResolvedPeer(key)
	}
	if !Wins(incoming.Version.Clock, resolvedIncomingPeer, hasExisting, existing.Version.Clock, resolvedExistingPeer) {
		s.observeClock(incoming.Version.Clock)
		return false, "", nil
	}

	s.observeClock(incoming.Version.Clock)
	row := Row{Data: projected, Version: incoming.Version}
	t.rows[key] = row

	var dispatchedData map[string]any
	if !row.IsTombstone() {
		dispatchedData = row.Data
	}
	s.dispatch(t, table, key, dispatchedData, ctx)
	return true, "", nil
}
