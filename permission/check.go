package permission

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	sqlp "github.com/rqlite/sql"

	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/schema"
)

// CheckResult is the verdict for one statement. DDL results always carry the
// extracted operation, allowed or not, so the caller can log exactly what was
// attempted.
type CheckResult struct {
	Allowed bool
	IsDDL   bool
	Op      *schema.Op
	// SQL is the statement re-rendered from its parse tree, empty when
	// parsing failed.
	SQL string
}

// CheckSQL parses raw SQL (possibly multiple ;-separated statements) and
// checks every statement against the caller's permission set for datastore
// dsID. One result per statement; a statement that fails to parse is denied
// and parsing stops there. Unknown tables or columns deny the statement:
// no permission could match, which is not an error.
func CheckSQL(sqlStr string, perms *Set, dsID string, snap *datastore.Snapshot) []CheckResult {
	c := &checker{perms: perms, dsID: dsID, snap: snap}

	// The parser's ALTER TABLE grammar predates SQLite's DROP COLUMN form,
	// so that one statement shape is recognized ahead of it.
	if table, column, ok := matchDropColumn(sqlStr); ok {
		r := c.checkDropColumn(table, column)
		r.SQL = fmt.Sprintf(`ALTER TABLE %q DROP COLUMN %q`, table, column)
		return []CheckResult{r}
	}

	var results []CheckResult
	p := sqlp.NewParser(strings.NewReader(sqlStr))
	for {
		stmt, err := p.ParseStatement()
		if err == io.EOF {
			break
		}
		if err != nil {
			results = append(results, CheckResult{})
			break
		}
		r := c.check(stmt)
		r.SQL = stmt.String()
		results = append(results, r)
	}
	return results
}

// AllAllowed reports whether every statement in results is allowed. The tool
// layer requires this before executing any statement.
func AllAllowed(results []CheckResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Allowed {
			return false
		}
	}
	return true
}

type checker struct {
	perms *Set
	dsID  string
	snap  *datastore.Snapshot
}

func (c *checker) check(stmt sqlp.Statement) CheckResult {
	switch s := stmt.(type) {
	case *sqlp.SelectStatement:
		return c.checkSelect(s)
	case *sqlp.InsertStatement:
		return c.checkInsert(s)
	case *sqlp.UpdateStatement:
		return c.checkUpdate(s)
	case *sqlp.DeleteStatement:
		return c.checkDelete(s)
	case *sqlp.CreateTableStatement:
		return c.checkCreateTable(s)
	case *sqlp.DropTableStatement:
		return c.checkDropTable(s)
	case *sqlp.AlterTableStatement:
		return c.checkAlterTable(s)
	default:
		// transactions, index DDL, pragmas: outside the vocabulary, denied
		return CheckResult{}
	}
}

// ---------------------------------------------------------------------------
// DML / DQL

func (c *checker) checkSelect(sel *sqlp.SelectStatement) CheckResult {
	cl := newClaims()
	c.walkSelect(sel, cl)
	return CheckResult{Allowed: c.claimsGranted(cl, ActionRowSelect, ActionColumnSelect)}
}

func (c *checker) checkInsert(ins *sqlp.InsertStatement) CheckResult {
	if ins.Table == nil {
		return CheckResult{}
	}
	table := ins.Table.Name
	if !c.snap.HasTable(table) {
		return CheckResult{}
	}

	var cols []string
	if len(ins.Columns) > 0 {
		for _, col := range ins.Columns {
			cols = append(cols, col.Name)
		}
	} else {
		// INSERT without a column list writes every schema column
		cols = c.snap.ColumnNames(table)
	}

	allowed := c.perms.GrantedTable(c.dsID, table, ActionRowInsert)
	for _, col := range cols {
		if !isRowidAlias(col) && !c.snap.HasColumn(table, col) {
			return CheckResult{}
		}
		if !c.perms.GrantedColumn(c.dsID, table, col, ActionColumnInsert) {
			allowed = false
		}
	}

	// INSERT ... SELECT also reads
	if ins.Select != nil {
		cl := newClaims()
		c.walkSelect(ins.Select, cl)
		if !c.claimsGranted(cl, ActionRowSelect, ActionColumnSelect) {
			allowed = false
		}
	}
	return CheckResult{Allowed: allowed}
}

func (c *checker) checkUpdate(upd *sqlp.UpdateStatement) CheckResult {
	if upd.Table == nil || upd.Table.Name == nil {
		return CheckResult{}
	}
	table := upd.Table.Name.Name
	if !c.snap.HasTable(table) {
		return CheckResult{}
	}

	scope := []scopeTable{{name: table, alias: aliasOf(upd.Table.Alias)}}
	allowed := c.perms.GrantedTable(c.dsID, table, ActionRowUpdate)

	cl := newClaims()
	for _, a := range upd.Assignments {
		for _, col := range a.Columns {
			if !c.snap.HasColumn(table, col.Name) {
				return CheckResult{}
			}
			if !c.perms.GrantedColumn(c.dsID, table, col.Name, ActionColumnUpdate) {
				allowed = false
			}
		}
		c.walkExpr(a.Expr, scope, cl)
	}
	c.walkExpr(upd.WhereExpr, scope, cl)

	// referenced columns are reads and need select
	if !c.claimsColumnsGranted(cl, ActionColumnSelect) {
		allowed = false
	}
	if cl.unknown {
		return CheckResult{}
	}
	return CheckResult{Allowed: allowed}
}

func (c *checker) checkDelete(del *sqlp.DeleteStatement) CheckResult {
	if del.Table == nil || del.Table.Name == nil {
		return CheckResult{}
	}
	table := del.Table.Name.Name
	if !c.snap.HasTable(table) {
		return CheckResult{}
	}

	allowed := c.perms.GrantedTable(c.dsID, table, ActionRowDelete)

	cl := newClaims()
	scope := []scopeTable{{name: table, alias: aliasOf(del.Table.Alias)}}
	c.walkExpr(del.WhereExpr, scope, cl)
	if cl.unknown {
		return CheckResult{}
	}
	if !c.claimsColumnsGranted(cl, ActionColumnSelect) {
		allowed = false
	}
	return CheckResult{Allowed: allowed}
}

// ---------------------------------------------------------------------------
// DDL

func (c *checker) checkCreateTable(ct *sqlp.CreateTableStatement) CheckResult {
	if ct.Name == nil {
		return CheckResult{}
	}
	op := &schema.Op{Type: schema.OpAddTable, Table: ct.Name.Name}
	return CheckResult{
		Allowed: c.perms.GrantedDatastore(c.dsID, ActionTableCreate) && canonicalCreateBody(ct),
		IsDDL:   true,
		Op:      op,
	}
}

// canonicalCreateBody accepts only the table body the add-table operation
// produces, a lone _id key column. Any other column list would not survive
// execution, so statements declaring one are denied rather than quietly
// reduced. Columns arrive one add-column at a time.
func canonicalCreateBody(ct *sqlp.CreateTableStatement) bool {
	if ct.Select != nil || len(ct.Columns) != 1 {
		return false
	}
	col := ct.Columns[0]
	return col != nil && col.Name != nil && col.Name.Name == "_id"
}

func (c *checker) checkDropTable(dt *sqlp.DropTableStatement) CheckResult {
	if dt.Name == nil {
		return CheckResult{}
	}
	table := dt.Name.Name
	op := &schema.Op{Type: schema.OpDropTable, Table: table}
	return CheckResult{
		Allowed: c.perms.GrantedTable(c.dsID, table, ActionTableDrop),
		IsDDL:   true,
		Op:      op,
	}
}

func (c *checker) checkAlterTable(at *sqlp.AlterTableStatement) CheckResult {
	if at.Name == nil {
		return CheckResult{}
	}
	table := at.Name.Name
	change := c.perms.GrantedTable(c.dsID, table, ActionSchemaChange)

	switch {
	case at.NewName != nil:
		op := &schema.Op{Type: schema.OpRenameTable, Table: table, NewName: at.NewName.Name}
		allowed := change && c.perms.GrantedTable(c.dsID, table, ActionTableRename)
		return CheckResult{Allowed: allowed, IsDDL: true, Op: op}

	case at.ColumnName != nil && at.NewColumnName != nil:
		op := &schema.Op{
			Type:    schema.OpRenameColumn,
			Table:   table,
			Column:  at.ColumnName.Name,
			NewName: at.NewColumnName.Name,
		}
		allowed := change && c.perms.GrantedColumn(c.dsID, table, at.ColumnName.Name, ActionColumnRename)
		return CheckResult{Allowed: allowed, IsDDL: true, Op: op}

	case at.ColumnDef != nil:
		op := &schema.Op{
			Type:   schema.OpAddColumn,
			Table:  table,
			Column: at.ColumnDef.Name.Name,
		}
		if at.ColumnDef.Type != nil && at.ColumnDef.Type.Name != nil {
			op.DBType = datastore.NormalizeType(at.ColumnDef.Type.Name.Name)
		}
		return CheckResult{Allowed: change, IsDDL: true, Op: op}
	}
	return CheckResult{}
}

func (c *checker) checkDropColumn(table, column string) CheckResult {
	op := &schema.Op{Type: schema.OpDropColumn, Table: table, Column: column}
	allowed := c.perms.GrantedTable(c.dsID, table, ActionSchemaChange) &&
		c.perms.GrantedColumn(c.dsID, table, column, ActionColumnDrop)
	return CheckResult{Allowed: allowed, IsDDL: true, Op: op}
}

const identPat = `(?:"([^"]+)"|([A-Za-z_][A-Za-z0-9_]*))`

var dropColumnRE = regexp.MustCompile(
	`(?is)^\s*ALTER\s+TABLE\s+` + identPat + `\s+DROP\s+(?:COLUMN\s+)?` + identPat + `\s*;?\s*$`)

// matchDropColumn recognizes a sole ALTER TABLE <t> DROP [COLUMN] <c>
// statement, bare or double-quoted identifiers.
func matchDropColumn(sqlStr string) (table, column string, ok bool) {
	m := dropColumnRE.FindStringSubmatch(sqlStr)
	if m == nil {
		return "", "", false
	}
	table = m[1]
	if table == "" {
		table = m[2]
	}
	column = m[3]
	if column == "" {
		column = m[4]
	}
	return table, column, true
}

// ---------------------------------------------------------------------------
// claims

type claimKey struct{ table, column string }

type claims struct {
	tables  map[string]struct{}
	columns map[claimKey]struct{}
	unknown bool
}

func newClaims() *claims {
	return &claims{tables: map[string]struct{}{}, columns: map[claimKey]struct{}{}}
}

func (cl *claims) table(name string) { cl.tables[name] = struct{}{} }

func (cl *claims) column(table, column string) {
	cl.columns[claimKey{table, column}] = struct{}{}
}

func (c *checker) claimsGranted(cl *claims, tableAction, columnAction Action) bool {
	if cl.unknown {
		return false
	}
	for t := range cl.tables {
		if !c.perms.GrantedTable(c.dsID, t, tableAction) {
			return false
		}
	}
	return c.claimsColumnsGranted(cl, columnAction)
}

func (c *checker) claimsColumnsGranted(cl *claims, columnAction Action) bool {
	for k := range cl.columns {
		if !c.perms.GrantedColumn(c.dsID, k.table, k.column, columnAction) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// statement traversal

type scopeTable struct {
	name  string
	alias string
}

func aliasOf(id *sqlp.Ident) string {
	if id == nil {
		return ""
	}
	return id.Name
}

// isRowidAlias matches the engine-level row key names; they are structural,
// not schema columns, and carry no column-level claim of their own.
func isRowidAlias(name string) bool {
	switch strings.ToLower(name) {
	case "_rowid", "rowid", "_rowid_", "oid":
		return true
	}
	return false
}

// walkSelect collects the access claims of one SELECT, recursing into joins
// and sub-selects. Aliases resolve to their real table before any claim is
// recorded.
func (c *checker) walkSelect(sel *sqlp.SelectStatement, cl *claims) {
	scope := c.sourceTables(sel.Source, cl)

	for _, t := range scope {
		if !c.snap.HasTable(t.name) {
			cl.unknown = true
			continue
		}
		cl.table(t.name)
	}

	for _, rc := range sel.Columns {
		if rc.Star.IsValid() {
			c.expandStar(scope, cl)
			continue
		}
		c.walkExpr(rc.Expr, scope, cl)
	}

	c.walkExpr(sel.WhereExpr, scope, cl)
	for _, e := range sel.GroupByExprs {
		c.walkExpr(e, scope, cl)
	}
	c.walkExpr(sel.HavingExpr, scope, cl)
	for _, ot := range sel.OrderingTerms {
		c.walkExpr(ot.X, scope, cl)
	}
}

// sourceTables resolves the FROM clause into (table, alias) pairs. Sub-select
// sources contribute their own claims and no scope entry: their derived
// columns are covered by the inner SELECT's checks.
func (c *checker) sourceTables(src sqlp.Source, cl *claims) []scopeTable {
	switch s := src.(type) {
	case nil:
		return nil
	case *sqlp.QualifiedTableName:
		if s.Name == nil {
			return nil
		}
		return []scopeTable{{name: s.Name.Name, alias: aliasOf(s.Alias)}}
	case *sqlp.ParenSource:
		return c.sourceTables(s.X, cl)
	case *sqlp.JoinClause:
		scope := append(c.sourceTables(s.X, cl), c.sourceTables(s.Y, cl)...)
		switch jc := s.Constraint.(type) {
		case *sqlp.OnConstraint:
			c.walkExpr(jc.X, scope, cl)
		case *sqlp.UsingConstraint:
			for _, col := range jc.Columns {
				c.resolveColumn(col.Name, scope, cl)
			}
		}
		return scope
	case *sqlp.SelectStatement:
		c.walkSelect(s, cl)
		return nil
	default:
		cl.unknown = true
		return nil
	}
}

// expandStar claims every schema column of every table in scope.
func (c *checker) expandStar(scope []scopeTable, cl *claims) {
	for _, t := range scope {
		cols := c.snap.ColumnNames(t.name)
		if cols == nil {
			cl.unknown = true
			continue
		}
		for _, col := range cols {
			cl.column(t.name, col)
		}
	}
}

// resolveTable maps an alias or table name used in a qualified reference to
// its real table.
func resolveTable(ref string, scope []scopeTable) (string, bool) {
	for _, t := range scope {
		if t.alias == ref || t.name == ref {
			return t.name, true
		}
	}
	return "", false
}

// resolveColumn attributes an unqualified column reference to the scope table
// that declares it.
func (c *checker) resolveColumn(name string, scope []scopeTable, cl *claims) {
	if isRowidAlias(name) {
		return
	}
	for _, t := range scope {
		if c.snap.HasColumn(t.name, name) {
			cl.column(t.name, name)
			return
		}
	}
	cl.unknown = true
}

// walkExpr records the column claims of one expression. Node kinds outside
// the handled set mark the claims unknown so the statement is denied rather
// than under-checked.
func (c *checker) walkExpr(expr sqlp.Expr, scope []scopeTable, cl *claims) {
	switch e := expr.(type) {
	case nil:
		return
	case *sqlp.Ident:
		c.resolveColumn(e.Name, scope, cl)
	case *sqlp.QualifiedRef:
		tbl, ok := resolveTable(e.Table.Name, scope)
		if !ok {
			cl.unknown = true
			return
		}
		if e.Star.IsValid() {
			c.expandStar([]scopeTable{{name: tbl}}, cl)
			return
		}
		if isRowidAlias(e.Column.Name) {
			return
		}
		if !c.snap.HasColumn(tbl, e.Column.Name) {
			cl.unknown = true
			return
		}
		cl.column(tbl, e.Column.Name)
	case *sqlp.StringLit, *sqlp.NumberLit, *sqlp.NullLit, *sqlp.BoolLit, *sqlp.BlobLit, *sqlp.BindExpr:
		return
	case *sqlp.UnaryExpr:
		c.walkExpr(e.X, scope, cl)
	case *sqlp.BinaryExpr:
		c.walkExpr(e.X, scope, cl)
		c.walkExpr(e.Y, scope, cl)
	case *sqlp.ParenExpr:
		c.walkExpr(e.X, scope, cl)
	case *sqlp.ExprList:
		for _, x := range e.Exprs {
			c.walkExpr(x, scope, cl)
		}
	case *sqlp.Call:
		for _, x := range e.Args {
			c.walkExpr(x, scope, cl)
		}
	case *sqlp.CaseExpr:
		c.walkExpr(e.Operand, scope, cl)
		for _, b := range e.Blocks {
			c.walkExpr(b.Condition, scope, cl)
			c.walkExpr(b.Body, scope, cl)
		}
		c.walkExpr(e.ElseExpr, scope, cl)
	case *sqlp.CastExpr:
		c.walkExpr(e.X, scope, cl)
	case *sqlp.Range:
		c.walkExpr(e.X, scope, cl)
		c.walkExpr(e.Y, scope, cl)
	case *sqlp.Exists:
		c.walkSelect(e.Select, cl)
	default:
		cl.unknown = true
	}
}
