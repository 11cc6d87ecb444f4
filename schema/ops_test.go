package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOp(t *testing.T) {
	op, ferr := ParseOp([]byte(`{"type":"add-column","table":"notes","column":"age","db_type":"INTEGER"}`))
	assert.Nil(t, ferr)
	assert.Equal(t, OpAddColumn, op.Type)
	assert.Equal(t, "age", op.Column)

	_, ferr = ParseOp([]byte(`{`))
	assert.NotNil(t, ferr)
	assert.Equal(t, 400, ferr.Status)
}

func TestOpValidate(t *testing.T) {
	cases := []struct {
		name string
		op   Op
		ok   bool
	}{
		{"add table", Op{Type: OpAddTable, Table: "notes"}, true},
		{"bad table name", Op{Type: OpAddTable, Table: "no tes"}, false},
		{"injection in table", Op{Type: OpDropTable, Table: `notes"; DROP TABLE x; --`}, false},
		{"add column", Op{Type: OpAddColumn, Table: "notes", Column: "age", DBType: "INTEGER"}, true},
		{"bad type", Op{Type: OpAddColumn, Table: "notes", Column: "age", DBType: "VARCHAR(10)"}, false},
		{"rename column", Op{Type: OpRenameColumn, Table: "notes", Column: "a", NewName: "b"}, true},
		{"rename missing new name", Op{Type: OpRenameTable, Table: "notes"}, false},
		{"fk ok", Op{Type: OpAddColumn, Table: "tags", Column: "note_id", DBType: "INTEGER",
			ForeignKey: &ForeignKeyRef{Table: "notes", Column: "_id"}}, true},
		{"fk bad ident", Op{Type: OpAddColumn, Table: "tags", Column: "note_id", DBType: "INTEGER",
			ForeignKey: &ForeignKeyRef{Table: "no tes", Column: "_id"}}, false},
		{"unknown type", Op{Type: "truncate", Table: "notes"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ferr := tc.op.Validate()
			if tc.ok {
				assert.Nil(t, ferr)
			} else {
				assert.NotNil(t, ferr)
			}
		})
	}
}

func TestOpDDL(t *testing.T) {
	assert.Equal(t,
		`CREATE TABLE "notes" ("_id" INTEGER PRIMARY KEY AUTOINCREMENT)`,
		Op{Type: OpAddTable, Table: "notes"}.DDL())

	assert.Equal(t,
		`ALTER TABLE "notes" ADD COLUMN "age" INTEGER`,
		Op{Type: OpAddColumn, Table: "notes", Column: "age", DBType: "INTEGER"}.DDL())

	withFK := Op{Type: OpAddColumn, Table: "tags", Column: "note_id", DBType: "INTEGER",
		ForeignKey: &ForeignKeyRef{Table: "notes", Column: "_id", OnDelete: "CASCADE"}}
	assert.Equal(t,
		`ALTER TABLE "tags" ADD COLUMN "note_id" INTEGER REFERENCES "notes"("_id") ON DELETE CASCADE`,
		withFK.DDL())
}

func TestOpInverseDDL(t *testing.T) {
	inv, ok := Op{Type: OpAddTable, Table: "notes"}.InverseDDL()
	assert.True(t, ok)
	assert.Equal(t, `DROP TABLE "notes"`, inv)

	inv, ok = Op{Type: OpRenameTable, Table: "notes", NewName: "memos"}.InverseDDL()
	assert.True(t, ok)
	assert.Equal(t, `ALTER TABLE "memos" RENAME TO "notes"`, inv)

	_, ok = Op{Type: OpDropTable, Table: "notes"}.InverseDDL()
	assert.False(t, ok)
	_, ok = Op{Type: OpDropColumn, Table: "notes", Column: "age"}.InverseDDL()
	assert.False(t, ok)
}
