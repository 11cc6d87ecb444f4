package permission

// ActionSet is a membership set of actions.
type ActionSet map[Action]struct{}

// Add inserts a into the set.
func (s ActionSet) Add(a Action) { s[a] = struct{}{} }

// Has reports membership.
func (s ActionSet) Has(a Action) bool {
	_, ok := s[a]
	return ok
}

// ColumnPerms holds the column-scoped actions granted on one column path.
type ColumnPerms struct {
	Actions ActionSet
}

// TablePerms holds the grants attached under one table path.
type TablePerms struct {
	Actions    ActionSet
	AllColumns *ColumnPerms
	Columns    map[string]*ColumnPerms
}

// DatastorePerms holds the grants attached under one datastore path.
type DatastorePerms struct {
	Actions   ActionSet
	AllTables *TablePerms
	Tables    map[string]*TablePerms
}

// Set is the in-memory projection of one MCP key's permission mappings,
// organized for O(1) hierarchical lookup.
type Set struct {
	Global        ActionSet
	AllDatastores ActionSet
	AllTables     ActionSet
	AllColumns    ActionSet
	Datastores    map[string]*DatastorePerms
}

// Grant is one permission mapping row as loaded from the catalog.
type Grant struct {
	Action Action
	Target string
}

// NewSet returns an empty projection.
func NewSet() *Set {
	return &Set{
		Global:        ActionSet{},
		AllDatastores: ActionSet{},
		AllTables:     ActionSet{},
		AllColumns:    ActionSet{},
		Datastores:    map[string]*DatastorePerms{},
	}
}

func (s *Set) datastore(id string) *DatastorePerms {
	d, ok := s.Datastores[id]
	if !ok {
		d = &DatastorePerms{Actions: ActionSet{}, Tables: map[string]*TablePerms{}}
		s.Datastores[id] = d
	}
	return d
}

func (d *DatastorePerms) allTables() *TablePerms {
	if d.AllTables == nil {
		d.AllTables = &TablePerms{Actions: ActionSet{}, Columns: map[string]*ColumnPerms{}}
	}
	return d.AllTables
}

func (d *DatastorePerms) table(name string) *TablePerms {
	t, ok := d.Tables[name]
	if !ok {
		t = &TablePerms{Actions: ActionSet{}, Columns: map[string]*ColumnPerms{}}
		d.Tables[name] = t
	}
	return t
}

func (t *TablePerms) allColumns() *ColumnPerms {
	if t.AllColumns == nil {
		t.AllColumns = &ColumnPerms{Actions: ActionSet{}}
	}
	return t.AllColumns
}

func (t *TablePerms) column(name string) *ColumnPerms {
	c, ok := t.Columns[name]
	if !ok {
		c = &ColumnPerms{Actions: ActionSet{}}
		t.Columns[name] = c
	}
	return c
}

// Parse builds the projection from a key's grants. Grants whose target does
// not parse, or whose wildcard shape cannot be addressed (a literal segment
// under a wildcard parent), are skipped: an unaddressable grant can never
// allow more than its addressable siblings.
func Parse(grants []Grant) *Set {
	s := NewSet()
	for _, g := range grants {
		t, err := ParseTarget(g.Target)
		if err != nil {
			continue
		}
		s.add(g.Action, t)
	}
	return s
}

func (s *Set) add(a Action, t Target) {
	if a.IsGlobal() {
		s.Global.Add(a)
		return
	}

	switch t.Type {
	case TypeDatastore:
		if t.Datastore == Wildcard {
			s.AllDatastores.Add(a)
		} else {
			s.datastore(t.Datastore).Actions.Add(a)
		}

	case TypeTable:
		switch {
		case t.Datastore == Wildcard && t.Table == Wildcard:
			s.AllTables.Add(a)
		case t.Datastore == Wildcard:
			// literal table under all datastores is not addressable
		case t.Table == Wildcard:
			s.datastore(t.Datastore).allTables().Actions.Add(a)
		default:
			s.datastore(t.Datastore).table(t.Table).Actions.Add(a)
		}

	case TypeColumn:
		switch {
		case t.Datastore == Wildcard && t.Table == Wildcard && t.Column == Wildcard:
			s.AllColumns.Add(a)
		case t.Datastore == Wildcard:
			// literal segments under all datastores are not addressable
		case t.Table == Wildcard && t.Column == Wildcard:
			s.datastore(t.Datastore).allTables().allColumns().Actions.Add(a)
		case t.Table == Wildcard:
			// literal column under all tables is not addressable
		case t.Column == Wildcard:
			s.datastore(t.Datastore).table(t.Table).allColumns().Actions.Add(a)
		default:
			s.datastore(t.Datastore).table(t.Table).column(t.Column).Actions.Add(a)
		}
	}
}

// GrantedGlobal reports whether a global action is granted.
func (s *Set) GrantedGlobal(a Action) bool {
	return s.Global.Has(a)
}

// GrantedDatastore reports whether a datastore-scoped action is granted on
// dsID: exact datastore first, then the all-datastores wildcard.
func (s *Set) GrantedDatastore(dsID string, a Action) bool {
	if d, ok := s.Datastores[dsID]; ok && d.Actions.Has(a) {
		return true
	}
	return s.AllDatastores.Has(a)
}

// GrantedTable reports whether a table-scoped action is granted on
// (dsID, table): exact table, then the datastore's table wildcard, then the
// global table wildcard.
func (s *Set) GrantedTable(dsID, table string, a Action) bool {
	if d, ok := s.Datastores[dsID]; ok {
		if t, ok := d.Tables[table]; ok && t.Actions.Has(a) {
			return true
		}
		if d.AllTables != nil && d.AllTables.Actions.Has(a) {
			return true
		}
	}
	return s.AllTables.Has(a)
}

// GrantedColumn reports whether a column-scoped action is granted on
// (dsID, table, column): exact column, the table's column wildcard, the
// datastore's table wildcard (its column sets), then the global column
// wildcard.
func (s *Set) GrantedColumn(dsID, table, column string, a Action) bool {
	if d, ok := s.Datastores[dsID]; ok {
		if t, ok := d.Tables[table]; ok {
			if c, ok := t.Columns[column]; ok && c.Actions.Has(a) {
				return true
			}
			if t.AllColumns != nil && t.AllColumns.Actions.Has(a) {
				return true
			}
		}
		if at := d.AllTables; at != nil {
			if c, ok := at.Columns[column]; ok && c.Actions.Has(a) {
				return true
			}
			if at.AllColumns != nil && at.AllColumns.Actions.Has(a) {
				return true
			}
		}
	}
	return s.AllColumns.Has(a)
}
