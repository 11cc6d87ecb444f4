package permission

import (
	"fmt"
	"strings"
)

// Wildcard is the segment value meaning "all" at that level.
const Wildcard = "*"

// Target is a parsed typed path addressing a datastore, a table, or a column.
// Any segment may be the wildcard.
type Target struct {
	Type      TargetType
	Datastore string
	Table     string
	Column    string
}

// DatastoreTargetID formats datastore:<id>.
func DatastoreTargetID(dsID string) string {
	return "datastore:" + dsID
}

// TableTargetID formats datastore:<id>.table:<name>.
func TableTargetID(dsID, table string) string {
	return fmt.Sprintf("datastore:%s.table:%s", dsID, table)
}

// ColumnTargetID formats datastore:<id>.table:<name>.column:<name>.
func ColumnTargetID(dsID, table, column string) string {
	return fmt.Sprintf("datastore:%s.table:%s.column:%s", dsID, table, column)
}

// ID re-renders the target path.
func (t Target) ID() string {
	switch t.Type {
	case TypeColumn:
		return ColumnTargetID(t.Datastore, t.Table, t.Column)
	case TypeTable:
		return TableTargetID(t.Datastore, t.Table)
	default:
		return DatastoreTargetID(t.Datastore)
	}
}

// ParseTarget parses a target path into its typed form.
func ParseTarget(id string) (Target, error) {
	var t Target
	rest, ok := strings.CutPrefix(id, "datastore:")
	if !ok {
		return t, fmt.Errorf("invalid target %q", id)
	}

	if i := strings.Index(rest, ".table:"); i >= 0 {
		t.Datastore = rest[:i]
		rest = rest[i+len(".table:"):]
	} else {
		t.Datastore = rest
		t.Type = TypeDatastore
		if t.Datastore == "" {
			return t, fmt.Errorf("invalid target %q", id)
		}
		return t, nil
	}

	if i := strings.Index(rest, ".column:"); i >= 0 {
		t.Table = rest[:i]
		t.Column = rest[i+len(".column:"):]
		t.Type = TypeColumn
		if t.Table == "" || t.Column == "" {
			return t, fmt.Errorf("invalid target %q", id)
		}
		return t, nil
	}

	t.Table = rest
	t.Type = TypeTable
	if t.Datastore == "" || t.Table == "" {
		return t, fmt.Errorf("invalid target %q", id)
	}
	return t, nil
}
