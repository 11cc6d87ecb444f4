// Package rows implements row-level reads and writes against a datastore
// file. Identifiers are validated against the schema snapshot and quoted;
// values always travel as bind parameters.
package rows

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/fault"
)

// RowKey is the synthetic key column present in every result row.
const RowKey = "_rowid"

// Row is one result row keyed by column name.
type Row map[string]any

// DefaultPageSize bounds Select when the caller does not choose one.
const DefaultPageSize = 50

// MaxPageSize caps caller-chosen page sizes.
const MaxPageSize = 500

// ClampPageSize normalizes a requested page size.
func ClampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

func tableOf(snap *datastore.Snapshot, table string) (datastore.Table, *fault.Entry) {
	t, ok := snap.Tables[table]
	if !ok {
		return t, fault.NotFound("rows.table", "table not found")
	}
	return t, nil
}

// coerce aligns a JSON-decoded value with the column's storage type.
func coerce(col datastore.Column, v any) any {
	if v == nil {
		return nil
	}
	if col.DBType == datastore.TypeInteger {
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			return int64(f)
		}
	}
	return v
}

// insertColumns validates the first row's columns against the schema and
// fixes the column order for the whole batch. Every row must carry the same
// column set, and every NOT NULL column without a default must be present.
func insertColumns(t datastore.Table, first map[string]any) ([]string, *fault.Entry) {
	cols := make([]string, 0, len(first))
	for name := range first {
		if _, ok := t.Columns[name]; !ok {
			return nil, fault.Input("rows.column", "unknown column").
				WithParams(map[string]any{"column": name})
		}
		cols = append(cols, name)
	}
	sort.Strings(cols)

	for name, col := range t.Columns {
		if !col.NotNull || col.DfltValue != nil || col.Autoincrement {
			continue
		}
		if _, ok := first[name]; !ok {
			return nil, fault.Input("rows.insert.notnull", "required column missing").
				WithParams(map[string]any{"column": name})
		}
	}
	return cols, nil
}

// Insert writes rows in a single transaction. Either every row lands or none
// does. All rows must share one column set. Returns the rows as inserted,
// keys included, in input order.
func Insert(ctx context.Context, db *sql.DB, snap *datastore.Snapshot, table string, rowsIn []map[string]any) ([]Row, *fault.Entry) {
	t, ferr := tableOf(snap, table)
	if ferr != nil {
		return nil, ferr
	}
	if len(rowsIn) == 0 || len(rowsIn[0]) == 0 {
		return nil, fault.Input("rows.insert.empty", "no rows to insert")
	}

	cols, ferr := insertColumns(t, rowsIn[0])
	if ferr != nil {
		return nil, ferr
	}
	quoted := make([]string, len(cols))
	for i, name := range cols {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	q := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
		table, strings.Join(quoted, ", "), placeholders(len(cols)))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fault.Engine("rows.insert", err)
	}
	defer tx.Rollback() //nolint:errcheck

	out := make([]Row, 0, len(rowsIn))
	for _, r := range rowsIn {
		if len(r) != len(cols) {
			return nil, fault.Input("rows.insert.columns", "rows must share one column set")
		}
		echo := make(Row, len(cols)+1)
		args := make([]any, 0, len(cols))
		for _, name := range cols {
			v, ok := r[name]
			if !ok {
				return nil, fault.Input("rows.insert.columns", "rows must share one column set")
			}
			cv := coerce(t.Columns[name], v)
			echo[name] = cv
			args = append(args, cv)
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return nil, insertFault(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fault.Engine("rows.insert", err)
		}
		echo[RowKey] = id
		out = append(out, echo)
	}

	if err := tx.Commit(); err != nil {
		return nil, fault.Engine("rows.insert", err)
	}
	return out, nil
}

// Update applies the set map to every row matching the filters, in one
// transaction, and returns the affected rows as they look afterwards. An
// empty filter list is refused; whole-table updates must be spelled out
// row by row.
func Update(ctx context.Context, db *sql.DB, snap *datastore.Snapshot, table string, set map[string]any, filters []Filter) ([]Row, *fault.Entry) {
	t, ferr := tableOf(snap, table)
	if ferr != nil {
		return nil, ferr
	}
	if len(set) == 0 {
		return nil, fault.Input("rows.update.empty", "no columns to update")
	}
	if len(filters) == 0 {
		return nil, fault.Input("rows.update.unfiltered", "update requires at least one filter")
	}

	where, whereArgs, ferr := buildWhere(t, filters)
	if ferr != nil {
		return nil, ferr
	}

	var setParts []string
	var setArgs []any
	for name, v := range set {
		col, ok := t.Columns[name]
		if !ok {
			return nil, fault.Input("rows.column", "unknown column").
				WithParams(map[string]any{"column": name})
		}
		setParts = append(setParts, fmt.Sprintf("%q = ?", name))
		setArgs = append(setArgs, coerce(col, v))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fault.Engine("rows.update", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// pin the affected set first so the returned rows are exactly the ones
	// the update touched
	keys, ferr := selectKeys(ctx, tx, table, where, whereArgs)
	if ferr != nil {
		return nil, ferr
	}
	if len(keys) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fault.Engine("rows.update", err)
		}
		return []Row{}, nil
	}

	q := fmt.Sprintf(`UPDATE %q SET %s WHERE _rowid_ IN (%s)`,
		table, strings.Join(setParts, ", "), placeholders(len(keys)))
	args := append(setArgs, int64sToAny(keys)...)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return nil, updateFault(err)
	}

	out, ferr := selectByKeys(ctx, tx, t, table, keys)
	if ferr != nil {
		return nil, ferr
	}
	if err := tx.Commit(); err != nil {
		return nil, fault.Engine("rows.update", err)
	}
	return out, nil
}

// Delete removes the rows with the given keys. An empty list is refused.
func Delete(ctx context.Context, db *sql.DB, snap *datastore.Snapshot, table string, keys []int64) (int64, *fault.Entry) {
	if _, ferr := tableOf(snap, table); ferr != nil {
		return 0, ferr
	}
	if len(keys) == 0 {
		return 0, fault.Input("rows.delete.empty", "delete requires at least one row key")
	}

	q := fmt.Sprintf(`DELETE FROM %q WHERE _rowid_ IN (%s)`, table, placeholders(len(keys)))
	res, err := db.ExecContext(ctx, q, int64sToAny(keys)...)
	if err != nil {
		return 0, fault.Engine("rows.delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fault.Engine("rows.delete", err)
	}
	return n, nil
}

// Sort orders a Select by one column.
type Sort struct {
	Column string `json:"column"`
	Dir    string `json:"dir,omitempty"`
}

// SelectQuery describes one paginated read. Zero values mean all columns,
// no filters, key order, first page at the default size. Offset addresses
// the window directly; Page is sugar for offsets at page boundaries and is
// ignored when Offset is set.
type SelectQuery struct {
	Columns  []string `json:"columns,omitempty"`
	Filters  []Filter `json:"filters,omitempty"`
	Sort     []Sort   `json:"sort,omitempty"`
	Page     int      `json:"page,omitempty"`
	PageSize int      `json:"page_size,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

// Window returns the effective page size and row offset of the query.
func (sq SelectQuery) Window() (pageSize, offset int) {
	pageSize = ClampPageSize(sq.PageSize)
	offset = sq.Offset
	if offset <= 0 {
		page := sq.Page
		if page < 1 {
			page = 1
		}
		offset = (page - 1) * pageSize
	}
	return pageSize, offset
}

// Select reads one page of rows matching the query. The second return
// reports whether another page exists; it is answered by fetching one row
// beyond the page, never by counting the table.
func Select(ctx context.Context, db *sql.DB, snap *datastore.Snapshot, table string, sq SelectQuery) ([]Row, bool, *fault.Entry) {
	t, ferr := tableOf(snap, table)
	if ferr != nil {
		return nil, false, ferr
	}

	where, args, ferr := buildWhere(t, sq.Filters)
	if ferr != nil {
		return nil, false, ferr
	}
	order, ferr := buildOrder(t, sq.Sort)
	if ferr != nil {
		return nil, false, ferr
	}

	pageSize, offset := sq.Window()

	cols := sq.Columns
	if len(cols) == 0 {
		cols = snap.ColumnNames(table)
	}
	sel := make([]string, 0, len(cols)+1)
	sel = append(sel, `_rowid_ AS "_rowid"`)
	for _, c := range cols {
		if c == RowKey {
			continue
		}
		if _, ok := t.Columns[c]; !ok {
			return nil, false, fault.Input("rows.column", "unknown column").
				WithParams(map[string]any{"column": c})
		}
		sel = append(sel, fmt.Sprintf("%q", c))
	}

	q := fmt.Sprintf(`SELECT %s FROM %q%s%s LIMIT %d OFFSET %d`,
		strings.Join(sel, ", "), table, where, order, pageSize+1, offset)
	rs, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, false, fault.Engine("rows.select", err)
	}
	defer rs.Close() //nolint:errcheck

	out, ferr := ScanRows(rs)
	if ferr != nil {
		return nil, false, ferr
	}
	hasMore := len(out) > pageSize
	if hasMore {
		out = out[:pageSize]
	}
	return out, hasMore, nil
}

// buildOrder renders the ORDER BY clause, key order when no sort is given.
// Sort columns must exist in the schema; direction is asc unless desc.
func buildOrder(t datastore.Table, sorts []Sort) (string, *fault.Entry) {
	if len(sorts) == 0 {
		return " ORDER BY _rowid_", nil
	}
	parts := make([]string, 0, len(sorts))
	for _, s := range sorts {
		col := s.Column
		if col == RowKey {
			col = "_rowid_"
		} else if _, ok := t.Columns[col]; !ok {
			return "", fault.Input("rows.sort.column", "unknown sort column").
				WithParams(map[string]any{"column": s.Column})
		}
		switch s.Dir {
		case "", "asc":
			parts = append(parts, fmt.Sprintf("%q ASC", col))
		case "desc":
			parts = append(parts, fmt.Sprintf("%q DESC", col))
		default:
			return "", fault.Input("rows.sort.dir", "sort direction must be asc or desc")
		}
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func selectKeys(ctx context.Context, tx *sql.Tx, table, where string, args []any) ([]int64, *fault.Entry) {
	q := fmt.Sprintf(`SELECT _rowid_ FROM %q%s ORDER BY _rowid_`, table, where)
	rs, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fault.Engine("rows.update", err)
	}
	defer rs.Close() //nolint:errcheck

	var keys []int64
	for rs.Next() {
		var k int64
		if err := rs.Scan(&k); err != nil {
			return nil, fault.Engine("rows.update", err)
		}
		keys = append(keys, k)
	}
	if err := rs.Err(); err != nil {
		return nil, fault.Engine("rows.update", err)
	}
	return keys, nil
}

func selectByKeys(ctx context.Context, tx *sql.Tx, t datastore.Table, table string, keys []int64) ([]Row, *fault.Entry) {
	cols := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		cols = append(cols, name)
	}
	sel := make([]string, 0, len(cols)+1)
	sel = append(sel, `_rowid_ AS "_rowid"`)
	for _, c := range cols {
		sel = append(sel, fmt.Sprintf("%q", c))
	}

	q := fmt.Sprintf(`SELECT %s FROM %q WHERE _rowid_ IN (%s) ORDER BY _rowid_`,
		strings.Join(sel, ", "), table, placeholders(len(keys)))
	rs, err := tx.QueryContext(ctx, q, int64sToAny(keys)...)
	if err != nil {
		return nil, fault.Engine("rows.update", err)
	}
	defer rs.Close() //nolint:errcheck
	return ScanRows(rs)
}

// ScanRows decodes every result row, converting byte slices to strings.
func ScanRows(rs *sql.Rows) ([]Row, *fault.Entry) {
	names, err := rs.Columns()
	if err != nil {
		return nil, fault.Engine("rows.scan", err)
	}

	out := []Row{}
	for rs.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fault.Engine("rows.scan", err)
		}
		r := Row{}
		for i, n := range names {
			if b, ok := vals[i].([]byte); ok {
				r[n] = string(b)
			} else {
				r[n] = vals[i]
			}
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fault.Engine("rows.scan", err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64sToAny(ks []int64) []any {
	out := make([]any, len(ks))
	for i, k := range ks {
		out[i] = k
	}
	return out
}

func insertFault(err error) *fault.Entry {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NOT NULL constraint"):
		return fault.Input("rows.notnull", "a required column is missing")
	case strings.Contains(msg, "UNIQUE constraint"):
		return fault.Conflict("rows.unique", "a unique constraint was violated")
	case strings.Contains(msg, "FOREIGN KEY constraint"):
		return fault.Input("rows.foreign_key", "a referenced row does not exist")
	}
	return fault.Engine("rows.insert", err)
}

func updateFault(err error) *fault.Entry {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NOT NULL constraint"):
		return fault.Input("rows.notnull", "a required column cannot be null")
	case strings.Contains(msg, "UNIQUE constraint"):
		return fault.Conflict("rows.unique", "a unique constraint was violated")
	case strings.Contains(msg, "FOREIGN KEY constraint"):
		return fault.Input("rows.foreign_key", "a referenced row does not exist")
	}
	return fault.Engine("rows.update", err)
}
