// Package datastore manages the per-datastore embedded SQLite files: a
// process-wide pooled connection map, file lifecycle on an afero filesystem,
// and schema introspection into the snapshot shape stored on the catalog row.
package datastore

import (
	"encoding/json"
	"regexp"
	"sort"
)

// identRe is the only shape a user-supplied table or column name may take.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether name is usable as a table or column identifier.
func ValidIdent(name string) bool { return identRe.MatchString(name) }

// Column data types supported inside a datastore file.
const (
	TypeText    = "TEXT"
	TypeInteger = "INTEGER"
	TypeReal    = "REAL"
	TypeBlob    = "BLOB"
)

// ValidDBType reports whether t is one of the supported column types.
func ValidDBType(t string) bool {
	switch t {
	case TypeText, TypeInteger, TypeReal, TypeBlob:
		return true
	}
	return false
}

// ForeignKey describes a single-column foreign key reference.
type ForeignKey struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	OnUpdate string `json:"on_update,omitempty"`
	OnDelete string `json:"on_delete,omitempty"`
}

// Column is one column of a table snapshot.
type Column struct {
	Name          string      `json:"name"`
	Order         int         `json:"order"`
	DBType        string      `json:"db_type"`
	DfltValue     *string     `json:"dflt_value,omitempty"`
	NotNull       bool        `json:"notnull,omitempty"`
	Autoincrement bool        `json:"autoincrement,omitempty"`
	ForeignKey    *ForeignKey `json:"foreign_key,omitempty"`
}

// Table is one table of a snapshot, keyed by column name.
type Table struct {
	Columns map[string]Column `json:"columns"`
}

// Snapshot is the derived cache of a datastore file's shape. The file is
// authoritative; the snapshot is re-derived after every committed schema
// change.
type Snapshot struct {
	Tables map[string]Table `json:"tables"`
}

// EmptySnapshot returns a snapshot with no tables.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Tables: map[string]Table{}}
}

// ParseSnapshot decodes the schema_json column of a catalog datastore row.
func ParseSnapshot(schemaJSON string) (*Snapshot, error) {
	if schemaJSON == "" {
		return EmptySnapshot(), nil
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(schemaJSON), &s); err != nil {
		return nil, err
	}
	if s.Tables == nil {
		s.Tables = map[string]Table{}
	}
	return &s, nil
}

// JSON encodes the snapshot for storage on the catalog row.
func (s *Snapshot) JSON() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// HasTable reports whether the snapshot contains table name.
func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.Tables[name]
	return ok
}

// HasColumn reports whether table name contains column col.
func (s *Snapshot) HasColumn(table, col string) bool {
	t, ok := s.Tables[table]
	if !ok {
		return false
	}
	_, ok = t.Columns[col]
	return ok
}

// ColumnNames returns the columns of table name in declaration order.
func (s *Snapshot) ColumnNames(table string) []string {
	t, ok := s.Tables[table]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(t.Columns))
	for n := range t.Columns {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		return t.Columns[names[i]].Order < t.Columns[names[j]].Order
	})
	return names
}

// TableNames returns the snapshot's table names, sorted.
func (s *Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for n := range s.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
