// Package schema applies typed schema-change operations to a datastore file
// and the catalog in one compensated sequence.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/fault"
)

// OpType enumerates the schema-change variants.
type OpType string

const (
	OpAddColumn    OpType = "add-column"
	OpDropColumn   OpType = "drop-column"
	OpRenameColumn OpType = "rename-column"
	OpAddTable     OpType = "add-table"
	OpDropTable    OpType = "drop-table"
	OpRenameTable  OpType = "rename-table"
)

// ForeignKeyRef is the optional reference attached to an added column.
type ForeignKeyRef struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	OnUpdate string `json:"on_update,omitempty"`
	OnDelete string `json:"on_delete,omitempty"`
}

// Op is one typed schema-change operation. Field usage per variant:
//
//	add-column    Table, Column, DBType, ForeignKey?
//	drop-column   Table, Column
//	rename-column Table, Column, NewName
//	add-table     Table
//	drop-table    Table
//	rename-table  Table, NewName
type Op struct {
	Type       OpType         `json:"type"`
	Table      string         `json:"table"`
	Column     string         `json:"column,omitempty"`
	NewName    string         `json:"new_name,omitempty"`
	DBType     string         `json:"db_type,omitempty"`
	ForeignKey *ForeignKeyRef `json:"foreign_key,omitempty"`
}

// ParseOp decodes and validates an operation from a request body.
func ParseOp(raw []byte) (Op, *fault.Entry) {
	var op Op
	if err := json.Unmarshal(raw, &op); err != nil {
		return op, fault.Input("schema.op.decode", "invalid schema change payload")
	}
	if ferr := op.Validate(); ferr != nil {
		return op, ferr
	}
	return op, nil
}

// Validate checks identifiers and the closed type vocabularies.
func (o Op) Validate() *fault.Entry {
	if !datastore.ValidIdent(o.Table) {
		return fault.Input("schema.op.table", "invalid table name")
	}
	switch o.Type {
	case OpAddColumn:
		if !datastore.ValidIdent(o.Column) {
			return fault.Input("schema.op.column", "invalid column name")
		}
		if !datastore.ValidDBType(o.DBType) {
			return fault.Input("schema.op.db_type", "data type must be one of TEXT, INTEGER, REAL, BLOB")
		}
		if fk := o.ForeignKey; fk != nil {
			if !datastore.ValidIdent(fk.Table) || !datastore.ValidIdent(fk.Column) {
				return fault.Input("schema.op.foreign_key", "invalid foreign key reference")
			}
		}
	case OpDropColumn:
		if !datastore.ValidIdent(o.Column) {
			return fault.Input("schema.op.column", "invalid column name")
		}
	case OpRenameColumn:
		if !datastore.ValidIdent(o.Column) || !datastore.ValidIdent(o.NewName) {
			return fault.Input("schema.op.column", "invalid column name")
		}
	case OpAddTable, OpDropTable:
		// table already checked
	case OpRenameTable:
		if !datastore.ValidIdent(o.NewName) {
			return fault.Input("schema.op.table", "invalid table name")
		}
	default:
		return fault.Input("schema.op.type", "unknown schema change type")
	}
	return nil
}

// DDL renders the engine statement for the operation. Validate first;
// identifiers are interpolated quoted.
func (o Op) DDL() string {
	switch o.Type {
	case OpAddColumn:
		s := fmt.Sprintf(`ALTER TABLE %q ADD COLUMN %q %s`, o.Table, o.Column, o.DBType)
		if fk := o.ForeignKey; fk != nil {
			s += fmt.Sprintf(` REFERENCES %q(%q)`, fk.Table, fk.Column)
			if fk.OnUpdate != "" {
				s += " ON UPDATE " + fk.OnUpdate
			}
			if fk.OnDelete != "" {
				s += " ON DELETE " + fk.OnDelete
			}
		}
		return s
	case OpDropColumn:
		return fmt.Sprintf(`ALTER TABLE %q DROP COLUMN %q`, o.Table, o.Column)
	case OpRenameColumn:
		return fmt.Sprintf(`ALTER TABLE %q RENAME COLUMN %q TO %q`, o.Table, o.Column, o.NewName)
	case OpAddTable:
		// every new table gets the synthetic autoincrement key
		return fmt.Sprintf(`CREATE TABLE %q ("_id" INTEGER PRIMARY KEY AUTOINCREMENT)`, o.Table)
	case OpDropTable:
		return fmt.Sprintf(`DROP TABLE %q`, o.Table)
	case OpRenameTable:
		return fmt.Sprintf(`ALTER TABLE %q RENAME TO %q`, o.Table, o.NewName)
	}
	return ""
}

// InverseDDL renders the compensating statement. The second return is false
// for terminal operations (drop-table, drop-column) where no inverse DDL is
// attempted: the catalog transaction must commit-or-rollback as a unit.
func (o Op) InverseDDL() (string, bool) {
	switch o.Type {
	case OpAddColumn:
		return fmt.Sprintf(`ALTER TABLE %q DROP COLUMN %q`, o.Table, o.Column), true
	case OpRenameColumn:
		return fmt.Sprintf(`ALTER TABLE %q RENAME COLUMN %q TO %q`, o.Table, o.NewName, o.Column), true
	case OpAddTable:
		return fmt.Sprintf(`DROP TABLE %q`, o.Table), true
	case OpRenameTable:
		return fmt.Sprintf(`ALTER TABLE %q RENAME TO %q`, o.NewName, o.Table), true
	}
	return "", false
}
