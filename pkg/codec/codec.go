package codec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/obsidian-reach/gossipkv/pkg/store"
)

// Serialize renders every table in st that currently holds at least one
// row (live or tombstoned) into the positional textual format. Tables
// with no rows are omitted entirely, matching the grammar's requirement
// that a table block hold at least one row. A table that holds rows but
// was declared without a schema cannot be positionally encoded and fails
// the whole call: there is no field order to walk without one.
func Serialize(st *store.Store, tableNames ...string) (string, error) {
	if len(tableNames) == 0 {
		tableNames = st.TableNames()
		sort.Strings(tableNames)
	}

	var b strings.Builder
	b.WriteByte('{')
	b.WriteString(encodeHex(st.Clock()))

	for _, name := range tableNames {
		desc, ok := st.TableDescriptor(name)
		if !ok {
			return "", fmt.Errorf("codec: unknown table %q", name)
		}
		snap, err := st.Snapshot(name)
		if err != nil {
			return "", err
		}
		if len(snap) == 0 {
			continue
		}
		if desc.Schema == nil {
			return "", fmt.Errorf("codec: table %q has no schema, serialization is unsupported", name)
		}

		block, err := serializeTable(desc, snap)
		if err != nil {
			return "", fmt.Errorf("codec: table %q: %w", name, err)
		}
		b.WriteByte(';')
		b.WriteString(name)
		b.WriteByte('{')
		b.WriteString(block)
		b.WriteByte('}')
	}

	b.WriteByte('}')
	return b.String(), nil
}

func serializeTable(desc store.TableDescriptor, snap map[any]store.Row) (string, error) {
	keys := make([]any, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return store.KeyString(keys[i]) < store.KeyString(keys[j])
	})

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		row := snap[key]
		rowText, err := serializeRow(desc, key, row)
		if err != nil {
			return "", err
		}
		b.WriteString(rowText)
	}
	return b.String(), nil
}

func serializeRow(desc store.TableDescriptor, key any, row store.Row) (string, error) {
	keyText, err := encodeKey(desc.KeyType, key)
	if err != nil {
		return "", err
	}

	var values string
	if !row.IsTombstone() {
		values, err = serializeValues(desc.Schema, row.Data)
		if err != nil {
			return "", err
		}
	}

	var b strings.Builder
	b.WriteString(keyText)
	b.WriteByte('{')
	b.WriteByte('{')
	b.WriteString(values)
	b.WriteByte('}')
	b.WriteString(encodeHex(row.Version.Clock))
	b.WriteByte(';')
	b.WriteString(row.Version.Peer)
	if row.Version.Tombstone {
		b.WriteString(";1")
	}
	b.WriteByte('}')
	return b.String(), nil
}

func serializeValues(schema store.Schema, data map[string]any) (string, error) {
	fields := schema.FieldNames()
	parts := make([]string, len(fields))
	for i, field := range fields {
		encoded, err := encodeFieldValue(data[field])
		if err != nil {
			return "", fmt.Errorf("field %q: %w", field, err)
		}
		parts[i] = encoded
	}
	return strings.Join(parts, ";"), nil
}
