package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Introspect reads the schema of an open datastore connection and produces a
// fresh snapshot. The engine catalog is the source of truth; this is the only
// place snapshots are derived from.
func Introspect(ctx context.Context, db *sql.DB) (*Snapshot, error) {
	snap := EmptySnapshot()

	rows, err := db.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "introspect: list tables")
	}
	defer rows.Close() //nolint:errcheck

	type tbl struct{ name, createSQL string }
	var tables []tbl
	for rows.Next() {
		var t tbl
		var createSQL sql.NullString
		if err := rows.Scan(&t.name, &createSQL); err != nil {
			return nil, errors.Wrap(err, "introspect: scan table")
		}
		t.createSQL = createSQL.String
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "introspect: list tables")
	}

	for _, t := range tables {
		table, err := introspectTable(ctx, db, t.name, t.createSQL)
		if err != nil {
			return nil, err
		}
		snap.Tables[t.name] = table
	}
	return snap, nil
}

func introspectTable(ctx context.Context, db *sql.DB, name, createSQL string) (Table, error) {
	table := Table{Columns: map[string]Column{}}
	if !ValidIdent(name) {
		// Tables we did not create (quoted exotic names) are skipped rather
		// than interpolated into a PRAGMA.
		return table, nil
	}

	autoinc := strings.Contains(strings.ToUpper(createSQL), "AUTOINCREMENT")

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, name))
	if err != nil {
		return table, errors.Wrapf(err, "introspect: table_info %s", name)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			cid     int
			colName string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			return table, errors.Wrapf(err, "introspect: table_info %s", name)
		}
		col := Column{
			Name:          colName,
			Order:         cid,
			DBType:        NormalizeType(colType),
			NotNull:       notNull != 0,
			Autoincrement: autoinc && pk != 0,
		}
		if dflt.Valid {
			v := dflt.String
			col.DfltValue = &v
		}
		table.Columns[colName] = col
	}
	if err := rows.Err(); err != nil {
		return table, errors.Wrapf(err, "introspect: table_info %s", name)
	}

	if err := introspectForeignKeys(ctx, db, name, table); err != nil {
		return table, err
	}
	return table, nil
}

func introspectForeignKeys(ctx context.Context, db *sql.DB, name string, table Table) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%q)`, name))
	if err != nil {
		return errors.Wrapf(err, "introspect: foreign_key_list %s", name)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			id, seq                    int
			refTable, from             string
			to                         sql.NullString
			onUpdate, onDelete, match_ string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match_); err != nil {
			return errors.Wrapf(err, "introspect: foreign_key_list %s", name)
		}
		col, ok := table.Columns[from]
		if !ok {
			continue
		}
		col.ForeignKey = &ForeignKey{
			Table:    refTable,
			Column:   to.String,
			OnUpdate: onUpdate,
			OnDelete: onDelete,
		}
		table.Columns[from] = col
	}
	return rows.Err()
}

// NormalizeType maps a declared column type to one of the four supported
// storage types, following SQLite affinity rules for anything exotic.
func NormalizeType(declared string) string {
	t := strings.ToUpper(strings.TrimSpace(declared))
	switch t {
	case TypeText, TypeInteger, TypeReal, TypeBlob:
		return t
	}
	switch {
	case strings.Contains(t, "INT"):
		return TypeInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return TypeText
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return TypeReal
	case t == "":
		return TypeBlob
	default:
		return TypeBlob
	}
}
