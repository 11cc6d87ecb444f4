// Package permission implements the hierarchical permission model and the
// SQL checker that mediates every agent-issued query: targets addressed by
// typed, wildcard-aware paths; actions from a closed vocabulary; an in-memory
// projection of one key's grants; and the statement classifier that turns raw
// SQL into access claims checked against that projection.
package permission

// Action is one verb from the closed permission vocabulary.
type Action string

// Global scope.
const (
	ActionDatastoreCreate Action = "datastore.create"
)

// Datastore scope.
const (
	ActionDatastoreList   Action = "datastore.list"
	ActionDatastoreRename Action = "datastore.rename"
	ActionDatastoreDrop   Action = "datastore.drop"
	ActionTableCreate     Action = "datastore.table.create"
)

// Table scope.
const (
	ActionTableList    Action = "datastore.table.list"
	ActionTableRename  Action = "datastore.table.rename"
	ActionTableDrop    Action = "datastore.table.drop"
	ActionSchemaChange Action = "datastore.table.schema.change"
	ActionRowInsert    Action = "datastore.table.row.insert"
	ActionRowUpdate    Action = "datastore.table.row.update"
	ActionRowDelete    Action = "datastore.table.row.delete"
	ActionRowSelect    Action = "datastore.table.row.select"
)

// Column scope.
const (
	ActionColumnRename Action = "datastore.table.column.rename"
	ActionColumnDrop   Action = "datastore.table.column.drop"
	ActionColumnInsert Action = "datastore.table.column.insert"
	ActionColumnUpdate Action = "datastore.table.column.update"
	ActionColumnDelete Action = "datastore.table.column.delete"
	ActionColumnSelect Action = "datastore.table.column.select"
)

// TargetType identifies the level a target path addresses.
type TargetType string

const (
	TypeDatastore TargetType = "datastore"
	TypeTable     TargetType = "datastore.table"
	TypeColumn    TargetType = "datastore.table.column"
)

// AllowedActionsByType is the static constraint on which action may be
// attached to which target type. The catalog seeds and enforces it.
var AllowedActionsByType = map[TargetType][]Action{
	TypeDatastore: {
		ActionDatastoreCreate,
		ActionDatastoreList,
		ActionDatastoreRename,
		ActionDatastoreDrop,
		ActionTableCreate,
	},
	TypeTable: {
		ActionTableList,
		ActionTableRename,
		ActionTableDrop,
		ActionSchemaChange,
		ActionRowInsert,
		ActionRowUpdate,
		ActionRowDelete,
		ActionRowSelect,
	},
	TypeColumn: {
		ActionColumnRename,
		ActionColumnDrop,
		ActionColumnInsert,
		ActionColumnUpdate,
		ActionColumnDelete,
		ActionColumnSelect,
	},
}

// Actions returns the full vocabulary in a stable order.
func Actions() []Action {
	var all []Action
	for _, tt := range []TargetType{TypeDatastore, TypeTable, TypeColumn} {
		all = append(all, AllowedActionsByType[tt]...)
	}
	return all
}

// ActionAllowedOn reports whether a may be attached to a target of type tt.
func ActionAllowedOn(a Action, tt TargetType) bool {
	for _, allowed := range AllowedActionsByType[tt] {
		if a == allowed {
			return true
		}
	}
	return false
}

// IsGlobal reports whether the action is evaluated against the global set
// only, never against a concrete datastore.
func (a Action) IsGlobal() bool { return a == ActionDatastoreCreate }
