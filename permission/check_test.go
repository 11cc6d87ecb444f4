package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/schema"
)

const dsID = "ds1"

func testSnap() *datastore.Snapshot {
	snap := datastore.EmptySnapshot()
	snap.Tables["notes"] = datastore.Table{Columns: map[string]datastore.Column{
		"_id":   {Name: "_id", Order: 0, DBType: datastore.TypeInteger, Autoincrement: true},
		"title": {Name: "title", Order: 1, DBType: datastore.TypeText},
		"body":  {Name: "body", Order: 2, DBType: datastore.TypeText},
	}}
	snap.Tables["tags"] = datastore.Table{Columns: map[string]datastore.Column{
		"_id":     {Name: "_id", Order: 0, DBType: datastore.TypeInteger, Autoincrement: true},
		"note_id": {Name: "note_id", Order: 1, DBType: datastore.TypeInteger},
		"label":   {Name: "label", Order: 2, DBType: datastore.TypeText},
	}}
	return snap
}

func fullAccess() *Set {
	return Parse([]Grant{
		{ActionRowSelect, "datastore:ds1.table:*"},
		{ActionRowInsert, "datastore:ds1.table:*"},
		{ActionRowUpdate, "datastore:ds1.table:*"},
		{ActionRowDelete, "datastore:ds1.table:*"},
		{ActionColumnSelect, "datastore:ds1.table:*.column:*"},
		{ActionColumnInsert, "datastore:ds1.table:*.column:*"},
		{ActionColumnUpdate, "datastore:ds1.table:*.column:*"},
	})
}

func TestCheckSelectColumnVisibility(t *testing.T) {
	// row.select on the table, column.select on title only
	perms := Parse([]Grant{
		{ActionRowSelect, "datastore:ds1.table:notes"},
		{ActionColumnSelect, "datastore:ds1.table:notes.column:title"},
	})
	snap := testSnap()

	res := CheckSQL(`SELECT title FROM notes`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.True(t, res[0].Allowed)
	assert.False(t, res[0].IsDDL)

	res = CheckSQL(`SELECT body FROM notes`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)

	// star expands to every column, including the hidden ones
	res = CheckSQL(`SELECT * FROM notes`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)

	// hidden column in WHERE is still a read
	res = CheckSQL(`SELECT title FROM notes WHERE body LIKE '%x%'`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)
}

func TestCheckSelectAliasesAndJoins(t *testing.T) {
	perms := fullAccess()
	snap := testSnap()

	res := CheckSQL(
		`SELECT n.title, t.label FROM notes n JOIN tags t ON t.note_id = n._id ORDER BY n.title`,
		perms, dsID, snap)
	require.Len(t, res, 1)
	assert.True(t, res[0].Allowed)

	// unknown alias
	res = CheckSQL(`SELECT x.title FROM notes n`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)
}

func TestCheckSelectUnknownTableDenied(t *testing.T) {
	res := CheckSQL(`SELECT * FROM missing`, fullAccess(), dsID, testSnap())
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)
}

func TestCheckParseFailureDenied(t *testing.T) {
	res := CheckSQL(`SELEKT nonsense`, fullAccess(), dsID, testSnap())
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)
}

func TestCheckMultiStatement(t *testing.T) {
	perms := Parse([]Grant{
		{ActionRowSelect, "datastore:ds1.table:notes"},
		{ActionColumnSelect, "datastore:ds1.table:notes.column:*"},
	})
	res := CheckSQL(`SELECT title FROM notes; SELECT label FROM tags`, perms, dsID, testSnap())
	require.Len(t, res, 2)
	assert.True(t, res[0].Allowed)
	assert.False(t, res[1].Allowed)
	assert.False(t, AllAllowed(res))
}

func TestCheckInsert(t *testing.T) {
	perms := Parse([]Grant{
		{ActionRowInsert, "datastore:ds1.table:notes"},
		{ActionColumnInsert, "datastore:ds1.table:notes.column:title"},
	})
	snap := testSnap()

	res := CheckSQL(`INSERT INTO notes (title) VALUES ('a')`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.True(t, res[0].Allowed)

	res = CheckSQL(`INSERT INTO notes (title, body) VALUES ('a', 'b')`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)

	// no column list means every schema column
	res = CheckSQL(`INSERT INTO notes VALUES (1, 'a', 'b')`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)

	res = CheckSQL(`INSERT INTO notes (nope) VALUES ('a')`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)
}

func TestCheckUpdateAndDelete(t *testing.T) {
	perms := Parse([]Grant{
		{ActionRowUpdate, "datastore:ds1.table:notes"},
		{ActionRowDelete, "datastore:ds1.table:notes"},
		{ActionColumnUpdate, "datastore:ds1.table:notes.column:title"},
		{ActionColumnSelect, "datastore:ds1.table:notes.column:*"},
	})
	snap := testSnap()

	res := CheckSQL(`UPDATE notes SET title = 'x' WHERE body = 'y'`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.True(t, res[0].Allowed)

	// body is not updatable
	res = CheckSQL(`UPDATE notes SET body = 'x'`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)

	res = CheckSQL(`DELETE FROM notes WHERE title = 'x'`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.True(t, res[0].Allowed)

	res = CheckSQL(`DELETE FROM tags`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)
}

func TestCheckAddColumnExtractsOp(t *testing.T) {
	perms := Parse([]Grant{
		{ActionSchemaChange, "datastore:ds1.table:notes"},
	})

	res := CheckSQL(`ALTER TABLE notes ADD COLUMN age INTEGER`, perms, dsID, testSnap())
	require.Len(t, res, 1)
	assert.True(t, res[0].Allowed)
	assert.True(t, res[0].IsDDL)
	require.NotNil(t, res[0].Op)
	assert.Equal(t, schema.OpAddColumn, res[0].Op.Type)
	assert.Equal(t, "notes", res[0].Op.Table)
	assert.Equal(t, "age", res[0].Op.Column)
	assert.Equal(t, datastore.TypeInteger, res[0].Op.DBType)
}

func TestCheckDropTableDeniedStillExtractsOp(t *testing.T) {
	perms := Parse([]Grant{
		{ActionRowSelect, "datastore:ds1.table:notes"},
	})

	res := CheckSQL(`DROP TABLE notes`, perms, dsID, testSnap())
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)
	assert.True(t, res[0].IsDDL)
	require.NotNil(t, res[0].Op)
	assert.Equal(t, schema.OpDropTable, res[0].Op.Type)
	assert.Equal(t, "notes", res[0].Op.Table)
}

func TestCheckDDLRequiredActions(t *testing.T) {
	snap := testSnap()

	// create table needs the datastore-level create action
	perms := Parse([]Grant{{ActionTableCreate, "datastore:ds1"}})
	res := CheckSQL(`CREATE TABLE memos ("_id" INTEGER PRIMARY KEY AUTOINCREMENT)`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.True(t, res[0].Allowed)
	require.NotNil(t, res[0].Op)
	assert.Equal(t, schema.OpAddTable, res[0].Op.Type)
	assert.Equal(t, "memos", res[0].Op.Table)

	// rename table needs schema.change and table.rename together
	perms = Parse([]Grant{{ActionSchemaChange, "datastore:ds1.table:notes"}})
	res = CheckSQL(`ALTER TABLE notes RENAME TO memos`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)

	perms = Parse([]Grant{
		{ActionSchemaChange, "datastore:ds1.table:notes"},
		{ActionTableRename, "datastore:ds1.table:notes"},
	})
	res = CheckSQL(`ALTER TABLE notes RENAME TO memos`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.True(t, res[0].Allowed)
	assert.Equal(t, schema.OpRenameTable, res[0].Op.Type)
	assert.Equal(t, "memos", res[0].Op.NewName)

	// drop column needs schema.change and column.drop on that column
	perms = Parse([]Grant{
		{ActionSchemaChange, "datastore:ds1.table:notes"},
		{ActionColumnDrop, "datastore:ds1.table:notes.column:body"},
	})
	res = CheckSQL(`ALTER TABLE notes DROP COLUMN body`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.True(t, res[0].Allowed)
	assert.Equal(t, schema.OpDropColumn, res[0].Op.Type)

	res = CheckSQL(`ALTER TABLE notes DROP COLUMN title`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)
}

func TestCheckDropColumnForms(t *testing.T) {
	snap := testSnap()
	perms := Parse([]Grant{
		{ActionSchemaChange, "datastore:ds1.table:notes"},
		{ActionColumnDrop, "datastore:ds1.table:notes.column:body"},
	})

	for _, stmt := range []string{
		`ALTER TABLE notes DROP COLUMN body`,
		`alter table "notes" drop "body";`,
		"  ALTER TABLE\n notes DROP COLUMN \"body\"",
	} {
		res := CheckSQL(stmt, perms, dsID, snap)
		require.Len(t, res, 1, stmt)
		assert.True(t, res[0].Allowed, stmt)
		assert.True(t, res[0].IsDDL, stmt)
		require.NotNil(t, res[0].Op, stmt)
		assert.Equal(t, schema.OpDropColumn, res[0].Op.Type)
		assert.Equal(t, "notes", res[0].Op.Table)
		assert.Equal(t, "body", res[0].Op.Column)
		assert.Equal(t, `ALTER TABLE "notes" DROP COLUMN "body"`, res[0].SQL)
	}

	// without the grants the operation is still extracted
	res := CheckSQL(`ALTER TABLE notes DROP COLUMN body`, Parse(nil), dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)
	assert.True(t, res[0].IsDDL)
	require.NotNil(t, res[0].Op)
	assert.Equal(t, schema.OpDropColumn, res[0].Op.Type)
}

func TestCheckCreateTableNonCanonicalDenied(t *testing.T) {
	snap := testSnap()
	perms := Parse([]Grant{{ActionTableCreate, "datastore:ds1"}})

	// declared columns would not survive execution, so the statement is
	// denied even though the create grant is present
	res := CheckSQL(`CREATE TABLE memos (a TEXT, b INTEGER)`, perms, dsID, snap)
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)
	assert.True(t, res[0].IsDDL)
	require.NotNil(t, res[0].Op)
	assert.Equal(t, schema.OpAddTable, res[0].Op.Type)
	assert.Equal(t, "memos", res[0].Op.Table)
}

func TestCheckOutsideVocabularyDenied(t *testing.T) {
	res := CheckSQL(`CREATE INDEX idx ON notes (title)`, fullAccess(), dsID, testSnap())
	require.Len(t, res, 1)
	assert.False(t, res[0].Allowed)
}

func TestAllAllowedEmpty(t *testing.T) {
	assert.False(t, AllAllowed(nil))
}
