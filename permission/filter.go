package permission

import "github.com/eclipticdb/ecliptic/datastore"

// FilterSchema prunes a snapshot down to what one key may see. A table stays
// when the key holds any select or list permission touching it: table.list,
// row.select, or column.select on at least one of its columns. Within a
// surviving table only the selectable columns remain, so a listable table
// whose columns are all hidden appears with an empty column set.
func FilterSchema(snap *datastore.Snapshot, perms *Set, dsID string) *datastore.Snapshot {
	out := datastore.EmptySnapshot()
	for name, table := range snap.Tables {
		visible := datastore.Table{Columns: map[string]datastore.Column{}}
		for colName, col := range table.Columns {
			if perms.GrantedColumn(dsID, name, colName, ActionColumnSelect) {
				visible.Columns[colName] = col
			}
		}
		if len(visible.Columns) == 0 &&
			!perms.GrantedTable(dsID, name, ActionTableList) &&
			!perms.GrantedTable(dsID, name, ActionRowSelect) {
			continue
		}
		out.Tables[name] = visible
	}
	return out
}

// FilterDatastores keeps only the datastore ids the key may list.
func FilterDatastores(ids []string, perms *Set) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if perms.GrantedDatastore(id, ActionDatastoreList) {
			out = append(out, id)
		}
	}
	return out
}
