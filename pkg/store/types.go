// Package store implements the per-row versioned table registry: schema
// validation, Lamport-clock last-writer-wins merge, tombstones, and
// subscriber fanout. It knows nothing about the network; the sync engine
// feeds it rows it received over the wire through Merge, exactly the way
// a local write goes through Set.
package store

import (
	"fmt"
	"strconv"
)

// FieldType tags the primitive value kinds a schema can accept.
type FieldType int

const (
	TypeAbsent FieldType = iota
	TypeString
	TypeInteger
	TypeBoolean
)

func (t FieldType) String() string {
	switch t {
	case TypeAbsent:
		return "absent"
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// KeyType is a table's primary-key domain: string or integer.
type KeyType int

const (
	KeyTypeString KeyType = iota
	KeyTypeInteger
)

func (k KeyType) String() string {
	if k == KeyTypeInteger {
		return "integer"
	}
	return "string"
}

// ValueType classifies v as one of the four primitive tags. Composite or
// callable values (anything other than string/int64/bool/nil) are not
// primitive.
func ValueType(v any) (FieldType, bool) {
	switch v.(type) {
	case nil:
		return TypeAbsent, true
	case string:
		return TypeString, true
	case int64:
		return TypeInteger, true
	case bool:
		return TypeBoolean, true
	default:
		return TypeAbsent, false
	}
}

// KeyMatches reports whether key's Go type agrees with kt.
func KeyMatches(kt KeyType, key any) bool {
	switch kt {
	case KeyTypeString:
		_, ok := key.(string)
		return ok
	case KeyTypeInteger:
		_, ok := key.(int64)
		return ok
	default:
		return false
	}
}

// KeyString renders a key the way the codec and the peer-shorthand rule
// need: the literal string form of a string key, or the decimal
// rendering of an integer key.
func KeyString(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case int64:
		return fmt.Sprintf("%d", k)
	default:
		return fmt.Sprintf("%v", k)
	}
}

// ParseKey inverts KeyString against kt: the literal string for a
// string-keyed table, or a parsed decimal int64 for an integer-keyed
// table. Callers that received a key as a wire or export string (JSON
// object keys are always strings) use this to recover the typed key
// before handing it to the store.
func ParseKey(kt KeyType, s string) (any, error) {
	switch kt {
	case KeyTypeString:
		return s, nil
	case KeyTypeInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("store: malformed integer key %q: %w", s, err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("store: unknown key type %v", kt)
	}
}

// Version stamps a row with the metadata the LWW merge rule and tombstone
// semantics operate over.
type Version struct {
	Clock     uint64
	Peer      string // "=" is storage shorthand for "equals this row's key"
	Tombstone bool
}

// ResolvedPeer returns the version's peer with the "=" shorthand
// expanded against key. Callers that need the real writer identity
// (digests, codec output) use this instead of reading Peer directly.
func (v Version) ResolvedPeer(key any) string {
	if v.Peer == "=" {
		return KeyString(key)
	}
	return v.Peer
}

// Row is a table entry: Data (nil when the row is a tombstone) plus
// its Version.
type Row struct {
	Data    map[string]any
	Version Version
}

// IsTombstone reports whether Version.Tombstone is set; Data is not
// inspected.
func (r Row) IsTombstone() bool {
	return r.Version.Tombstone
}

// Clone returns a Row whose Data map is an independent shallow copy, so
// callers can hand it to a subscriber or the wire without risking aliasing
// the store's internal map.
func (r Row) Clone() Row {
	out := Row{Version: r.Version}
	if r.Data != nil {
		out.Data = make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			out.Data[k] = v
		}
	}
	return out
}

// Wins reports the LWW predicate: incoming supersedes existing
// when existing is absent, incoming's clock is strictly greater, or clocks
// tie and incoming's peer sorts strictly greater lexicographically. Ties
// beyond (clock, peer) cannot occur by construction.
//
// Peer comparison uses the *resolved* writer identity (Version.Peer with
// the "=" shorthand expanded against the row's key), never the raw "="
// literal: two rows being compared share a key, so both would resolve
// identically, but comparing the literal byte '=' against an arbitrary
// peer id would silently corrupt the tie-break order.
func Wins(incomingClock uint64, incomingPeer string, existingExists bool, existingClock uint64, existingPeer string) bool {
	if !existingExists {
		return true
	}
	if incomingClock != existingClock {
		return incomingClock > existingClock
	}
	return incomingPeer > existingPeer
}
