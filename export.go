package gossipkv

import (
	"fmt"

	"github.com/obsidian-reach/gossipkv/pkg/store"
)

// ExportedVersion is a row's version metadata in the persisted-state
// layout, safe to hand to any external encoder (JSON, YAML, ...).
type ExportedVersion struct {
	Clock     uint64 `json:"clock"`
	Peer      string `json:"peer"`
	Tombstone bool   `json:"tombstone,omitempty"`
}

// ExportedRow is one row in the persisted-state layout. Data is omitted
// for tombstones.
type ExportedRow struct {
	Data    map[string]any  `json:"data,omitempty"`
	Version ExportedVersion `json:"version"`
}

// ExportedTable groups a table's rows, keyed by the row's string-form
// primary key. Empty tables are omitted from Export's result entirely.
type ExportedTable struct {
	Rows map[string]ExportedRow `json:"rows"`
}

// Export is the persisted-state layout: {clock, tables: {tableName:
// {rows: {key: {data, version}}}}}.
type Export struct {
	Clock  uint64                   `json:"clock"`
	Tables map[string]ExportedTable `json:"tables"`
}

// Export renders the whole database into the persisted-state layout.
func (inst *Instance) Export() (Export, error) {
	out := Export{
		Clock:  inst.store.Clock(),
		Tables: make(map[string]ExportedTable),
	}
	for _, name := range inst.store.TableNames() {
		snap, err := inst.store.Snapshot(name)
		if err != nil {
			return Export{}, err
		}
		if len(snap) == 0 {
			continue
		}
		rows := make(map[string]ExportedRow, len(snap))
		for key, row := range snap {
			rows[store.KeyString(key)] = ExportedRow{
				Data: row.Data,
				Version: ExportedVersion{
					Clock:     row.Version.Clock,
					Peer:      row.Version.ResolvedPeer(key),
					Tombstone: row.Version.Tombstone,
				},
			}
		}
		out.Tables[name] = ExportedTable{Rows: rows}
	}
	return out, nil
}

// Import merges every row of exp into the database through the same
// per-row validation store.Merge always applies, with subscriber/callback
// fanout suppressed for the whole bulk operation. It returns (true,
// warnings) when the import succeeds with zero or more rows rejected
// individually, or (false, warnings) only when a table referenced by exp
// is not declared locally, a structural/catastrophic failure that aborts
// the whole call.
func (inst *Instance) Import(exp Export) (ok bool, warnings []string, err error) {
	ctx := &store.MergeContext{SuppressFanout: true}
	for table, block := range exp.Tables {
		desc, declared := inst.store.TableDescriptor(table)
		if !declared {
			return false, warnings, fmt.Errorf("gossipkv: import references undeclared table %q", table)
		}
		for keyStr, er := range block.Rows {
			key, err := store.ParseKey(desc.KeyType, keyStr)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("gossipkv: table %s key %s: %v", table, keyStr, err))
				continue
			}
			row := store.Row{
				Data: er.Data,
				Version: store.Version{
					Clock:     er.Version.Clock,
					Peer:      er.Version.Peer,
					Tombstone: er.Version.Tombstone,
				},
			}
			_, warning, mergeErr := inst.store.Merge(table, key, row, ctx)
			if mergeErr != nil {
				return false, warnings, mergeErr
			}
			if warning != "" {
				warnings = append(warnings, warning)
			}
		}
	}
	return true, warnings, nil
}
