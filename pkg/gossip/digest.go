package gossip

import (
	"github.com/obsidian-reach/gossipkv/pkg/store"
)

// buildDigest walks every named table's snapshot and renders it into the
// wire digest shape: {clock, tables: {tableName: {key: version}}}.
func buildDigest(st *store.Store, tableNames []string) digestPayload {
	d := digestPayload{
		Clock:  st.Clock(),
		Tables: make(map[string]map[string]WireVersion, len(tableNames)),
	}
	for _, name := range tableNames {
		snap, err := st.Snapshot(name)
		if err != nil {
			continue
		}
		rows := make(map[string]WireVersion, len(snap))
		for key, row := range snap {
			rows[store.KeyString(key)] = WireVersion{
				Clock:     row.Version.Clock,
				Peer:      row.Version.ResolvedPeer(key),
				Tombstone: row.Version.Tombstone,
			}
		}
		d.Tables[name] = rows
	}
	return d
}

// missingRows compares an incoming digest against the local store and
// returns, per table, the string-form keys we lack entirely or whose
// local version loses the LWW predicate against the peer's.
func missingRows(st *store.Store, incoming digestPayload) map[string][]string {
	missing := make(map[string][]string)
	for table, rows := range incoming.Tables {
		desc, ok := st.TableDescriptor(table)
		if !ok {
			continue
		}
		snap, err := st.Snapshot(table)
		if err != nil {
			continue
		}
		var keys []string
		for keyStr, peerVersion := range rows {
			key, err := store.ParseKey(desc.KeyType, keyStr)
			if err != nil {
				continue
			}
			local, exists := snap[key]
			localPeer := ""
			if exists {
				localPeer = local.Version.ResolvedPeer(key)
			}
			if store.Wins(peerVersion.Clock, peerVersion.Peer, exists, local.Version.Clock, localPeer) {
				keys = append(keys, keyStr)
			}
		}
		if len(keys) > 0 {
			missing[table] = keys
		}
	}
	return missing
}

// buildRows answers a RequestRows for the given per-table key sets with
// whatever this store currently holds for those keys (live row or
// tombstone; a key this store has never heard of is simply omitted).
func buildRows(st *store.Store, requested map[string][]string) rowsPayload {
	out := rowsPayload{Tables: make(map[string]map[string]WireRow, len(requested))}
	for table, keyStrs := range requested {
		desc, ok := st.TableDescriptor(table)
		if !ok {
			continue
		}
		snap, err := st.Snapshot(table)
		if err != nil {
			continue
		}
		rows := make(map[string]WireRow, len(keyStrs))
		for _, keyStr := range keyStrs {
			key, err := store.ParseKey(desc.KeyType, keyStr)
			if err != nil {
				continue
			}
			row, found := snap[key]
			if !found {
				continue
			}
			rows[keyStr] = wireRowFromRow(key, row)
		}
		if len(rows) > 0 {
			out.Tables[table] = rows
		}
	}
	return out
}

// buildFullExport renders every declared table's full contents into the
// same per-table key-to-row shape Rows uses, for SnapshotResponse.
func buildFullExport(st *store.Store) snapshotResponsePayload {
	out := snapshotResponsePayload{
		Clock:  st.Clock(),
		Tables: make(map[string]map[string]WireRow),
	}
	for _, name := range st.TableNames() {
		snap, err := st.Snapshot(name)
		if err != nil || len(snap) == 0 {
			continue
		}
		rows := make(map[string]WireRow, len(snap))
		for key, row := range snap {
			rows[store.KeyString(key)] = wireRowFromRow(key, row)
		}
		out.Tables[name] = rows
	}
	return out
}

func wireRowFromRow(key any, row store.Row) WireRow {
	return WireRow{
		Data: row.Data,
		Version: WireVersion{
			Clock:     row.Version.Clock,
			Peer:      row.Version.ResolvedPeer(key),
			Tombstone: row.Version.Tombstone,
		},
	}
}

// coerceWireData undoes encoding/json's lossy number decoding: every JSON
// number arrives as float64, but this store's type system has no float
// primitive, so a field the schema declares (or, absent a schema, any
// field at all) as an integer is cast back to int64 before it ever
// reaches SchemaCopy/ValueType. A field the schema declares as something
// other than integer is left untouched, so a genuinely malformed payload
// still fails validation downstream instead of being silently coerced.
func coerceWireData(desc store.TableDescriptor, data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for field, v := range data {
		if f, isFloat := v.(float64); isFloat && (desc.Schema == nil || desc.Schema.Accepts(field, store.TypeInteger)) {
			out[field] = int64(f)
			continue
		}
		out[field] = v
	}
	return out
}

// applyWireRows merges every row of a Rows or SnapshotResponse payload
// into st, through the same per-row import validation store.Merge always
// applies. Failed rows are collected as warnings; the batch otherwise
// continues.
func applyWireRows(st *store.Store, tables map[string]map[string]WireRow) (merged int, warnings []string) {
	for table, rows := range tables {
		desc, ok := st.TableDescriptor(table)
		if !ok {
			warnings = append(warnings, "gossip: table "+table+" is not declared locally")
			continue
		}
		for keyStr, wr := range rows {
			key, err := store.ParseKey(desc.KeyType, keyStr)
			if err != nil {
				warnings = append(warnings, "gossip: table "+table+" key "+keyStr+": "+err.Error())
				continue
			}
			row := store.Row{
				Data: coerceWireData(desc, wr.Data),
				Version: store.Version{
					Clock:     wr.Version.Clock,
					Peer:      wr.Version.Peer,
					Tombstone: wr.Version.Tombstone,
				},
			}
			applied, warning, mergeErr := st.Merge(table, key, row, nil)
			if mergeErr != nil {
				warnings = append(warnings, "gossip: table "+table+": "+mergeErr.Error())
				continue
			}
			if warning != "" {
				warnings = append(warnings, warning)
				continue
			}
			if applied {
				merged++
			}
		}
	}
	return merged, warnings
}
