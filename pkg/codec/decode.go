package codec

import (
	"fmt"
	"strings"

	"github.com/obsidian-reach/gossipkv/pkg/store"
)

// Deserialize parses s into a rawDB (failing the whole call on any
// structural problem) and then merges every row it found into st via
// Store.Merge, suppressing fanout for the duration: deserialize is a bulk
// import, not an incremental update, and its caller (a snapshot load)
// does not want per-row notifications for data that is about to be
// superseded by the next row in the same batch anyway.
//
// A table name the local store has not declared, or a declared table
// without a schema, is fatal for the whole call, since there is no schema
// to decode its rows against; every table is checked before any row is
// merged. A row that fails decoding or validation is reported back as a
// warning and otherwise skipped; it never aborts the rest of the batch. A
// row that loses the LWW merge is skipped without a warning.
func Deserialize(st *store.Store, s string) (warnings []string, err error) {
	db, err := parse(s)
	if err != nil {
		return nil, err
	}

	descs := make([]store.TableDescriptor, len(db.tables))
	for i, table := range db.tables {
		desc, ok := st.TableDescriptor(table.name)
		if !ok {
			return nil, fmt.Errorf("codec: table %q is not declared locally", table.name)
		}
		if desc.Schema == nil {
			return nil, fmt.Errorf("codec: table %q has no schema, deserialization is unsupported", table.name)
		}
		descs[i] = desc
	}

	ctx := &store.MergeContext{SuppressFanout: true}
	for i, table := range db.tables {
		desc := descs[i]
		for _, raw := range table.rows {
			w := applyRow(st, table.name, desc, raw, ctx)
			if w != "" {
				warnings = append(warnings, w)
			}
		}
	}
	return warnings, nil
}

func applyRow(st *store.Store, tableName string, desc store.TableDescriptor, raw rawRow, ctx *store.MergeContext) string {
	key, err := decodeKey(desc.KeyType, raw.key)
	if err != nil {
		return fmt.Sprintf("codec: table %q row %q: %v", tableName, raw.key, err)
	}
	clock, err := decodeHex(raw.clockHex)
	if err != nil {
		return fmt.Sprintf("codec: table %q row %q: malformed clock: %v", tableName, raw.key, err)
	}
	if raw.peer == "" {
		return fmt.Sprintf("codec: table %q row %q: empty peer", tableName, raw.key)
	}

	row := store.Row{
		Version: store.Version{
			Clock:     clock,
			Peer:      raw.peer,
			Tombstone: raw.tombstone,
		},
	}
	if !raw.tombstone {
		data, w := decodeValues(desc.Schema, raw.values)
		if w != "" {
			return fmt.Sprintf("codec: table %q row %q: %s", tableName, raw.key, w)
		}
		row.Data = data
	}

	_, warning, mergeErr := st.Merge(tableName, key, row, ctx)
	if mergeErr != nil {
		return fmt.Sprintf("codec: table %q row %q: %v", tableName, raw.key, mergeErr)
	}
	return warning
}

// decodeValues splits raw on ';' and decodes each token against schema's
// fields in the same lexicographic order Serialize wrote them in. A token
// count mismatch (the degenerate "{;}" shape a buggy encoder might
// produce, among others) yields no usable data for this row; it is
// reported as a warning rather than failing the whole deserialize.
func decodeValues(schema store.Schema, raw string) (map[string]any, string) {
	fields := schema.FieldNames()
	var tokens []string
	if raw != "" {
		tokens = strings.Split(raw, ";")
	}
	if len(tokens) != len(fields) {
		return nil, fmt.Sprintf("row has %d value tokens, schema declares %d fields", len(tokens), len(fields))
	}

	data := make(map[string]any, len(fields))
	for i, field := range fields {
		v, err := decodeFieldValue(schema[field], tokens[i])
		if err != nil {
			return nil, fmt.Sprintf("field %q: %v", field, err)
		}
		data[field] = v
	}
	return data, ""
}
