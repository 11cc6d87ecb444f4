package controller

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eclipticdb/ecliptic/catalog"
	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/permission"
	"github.com/eclipticdb/ecliptic/rows"
	"github.com/eclipticdb/ecliptic/schema"
)

func newTestControllers(t *testing.T) (*Controllers, string) {
	t.Helper()
	dir := t.TempDir()
	log := zap.NewNop().Sugar()

	cat, err := catalog.Open(filepath.Join(dir, "catalog.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	pool := datastore.NewPool(filepath.Join(dir, "datastores"))
	t.Cleanup(pool.CloseAll)
	files := datastore.NewManager(afero.NewOsFs(), pool, log)

	c := New(cat, files, log)
	org, err := cat.CreateOrganization(context.Background(), "acme")
	require.NoError(t, err)
	return c, org.ID
}

func TestDatastoreLifecycle(t *testing.T) {
	c, orgID := newTestControllers(t)
	ctx := context.Background()

	ds, ferr := c.CreateDatastore(ctx, orgID, "main")
	require.Nil(t, ferr)
	assert.True(t, c.Files.Exists(ds.ExternalID))

	_, ferr = c.CreateDatastore(ctx, orgID, "main")
	require.NotNil(t, ferr)
	assert.Equal(t, 409, ferr.Status)

	list, ferr := c.ListDatastores(ctx, orgID)
	require.Nil(t, ferr)
	require.Len(t, list, 1)

	require.Nil(t, c.RenameDatastore(ctx, orgID, ds.ID, "primary"))
	got, _, ferr := c.GetDatastore(ctx, orgID, ds.ID)
	require.Nil(t, ferr)
	assert.Equal(t, "primary", got.Name)
	assert.Equal(t, ds.ExternalID, got.ExternalID)

	require.Nil(t, c.DropDatastore(ctx, orgID, ds.ID))
	assert.False(t, c.Files.Exists(ds.ExternalID))
	_, _, ferr = c.GetDatastore(ctx, orgID, ds.ID)
	require.NotNil(t, ferr)
	assert.Equal(t, 404, ferr.Status)
}

func TestDatastoreOrganizationIsolation(t *testing.T) {
	c, orgID := newTestControllers(t)
	ctx := context.Background()

	other, err := c.Catalog.CreateOrganization(ctx, "globex")
	require.NoError(t, err)

	ds, ferr := c.CreateDatastore(ctx, orgID, "main")
	require.Nil(t, ferr)

	_, _, ferr = c.GetDatastore(ctx, other.ID, ds.ID)
	require.NotNil(t, ferr)
	assert.Equal(t, 404, ferr.Status)

	ferr = c.DropDatastore(ctx, other.ID, ds.ID)
	require.NotNil(t, ferr)
	assert.Equal(t, 404, ferr.Status)

	list, ferr := c.ListDatastores(ctx, other.ID)
	require.Nil(t, ferr)
	assert.Empty(t, list)
}

func TestSchemaAndRowFlow(t *testing.T) {
	c, orgID := newTestControllers(t)
	ctx := context.Background()

	ds, ferr := c.CreateDatastore(ctx, orgID, "main")
	require.Nil(t, ferr)

	snap, ferr := c.ApplySchemaChange(ctx, orgID, ds.ID, schema.Op{Type: schema.OpAddTable, Table: "notes"})
	require.Nil(t, ferr)
	assert.True(t, snap.HasColumn("notes", "_id"))

	snap, ferr = c.ApplySchemaChange(ctx, orgID, ds.ID,
		schema.Op{Type: schema.OpAddColumn, Table: "notes", Column: "title", DBType: "TEXT"})
	require.Nil(t, ferr)
	assert.True(t, snap.HasColumn("notes", "title"))

	inserted, ferr := c.InsertRows(ctx, orgID, ds.ID, "notes", []map[string]any{
		{"title": "a"}, {"title": "b"},
	})
	require.Nil(t, ferr)
	require.Len(t, inserted, 2)
	keys := []int64{inserted[0][rows.RowKey].(int64), inserted[1][rows.RowKey].(int64)}

	got, hasMore, ferr := c.GetTableData(ctx, orgID, ds.ID, "notes", rows.SelectQuery{PageSize: 10})
	require.Nil(t, ferr)
	assert.False(t, hasMore)
	assert.Len(t, got, 2)

	updated, ferr := c.UpdateRows(ctx, orgID, ds.ID, "notes",
		map[string]any{"title": "z"},
		[]rows.Filter{{Column: "title", Op: "eq", Value: "a"}})
	require.Nil(t, ferr)
	require.Len(t, updated, 1)
	assert.Equal(t, "z", updated[0]["title"])

	n, ferr := c.DeleteRows(ctx, orgID, ds.ID, "notes", keys)
	require.Nil(t, ferr)
	assert.Equal(t, int64(2), n)

	// the catalog snapshot reflects the applied changes
	_, snap2, ferr := c.GetDatastore(ctx, orgID, ds.ID)
	require.Nil(t, ferr)
	assert.True(t, snap2.HasColumn("notes", "title"))
}

func agentWith(t *testing.T, c *Controllers, orgID string, grants ...struct {
	Action permission.Action
	Target string
}) *AgentIdentity {
	t.Helper()
	ctx := context.Background()
	key, err := c.Catalog.CreateMCPKey(ctx, orgID, "agent-"+time.Now().Format("150405.000000000"))
	require.NoError(t, err)
	for _, g := range grants {
		_, err := c.Catalog.AddMapping(ctx, orgID, key.ID, g.Target, g.Action)
		require.NoError(t, err)
	}
	id, ferr := c.ResolveKey(ctx, key.Secret)
	require.Nil(t, ferr)
	return id
}

type grant = struct {
	Action permission.Action
	Target string
}

func TestAgentQuery(t *testing.T) {
	c, orgID := newTestControllers(t)
	ctx := context.Background()

	ds, ferr := c.CreateDatastore(ctx, orgID, "main")
	require.Nil(t, ferr)
	_, ferr = c.ApplySchemaChange(ctx, orgID, ds.ID, schema.Op{Type: schema.OpAddTable, Table: "notes"})
	require.Nil(t, ferr)
	_, ferr = c.ApplySchemaChange(ctx, orgID, ds.ID,
		schema.Op{Type: schema.OpAddColumn, Table: "notes", Column: "title", DBType: "TEXT"})
	require.Nil(t, ferr)
	_, ferr = c.InsertRows(ctx, orgID, ds.ID, "notes", []map[string]any{
		{"title": "a"}, {"title": "b"}, {"title": "c"},
	})
	require.Nil(t, ferr)

	id := agentWith(t, c, orgID,
		grant{permission.ActionRowSelect, permission.TableTargetID(ds.ID, "notes")},
		grant{permission.ActionColumnSelect, permission.ColumnTargetID(ds.ID, "notes", "title")},
	)

	res, ferr := c.AgentQuery(ctx, id, ds.ID, `SELECT title FROM notes`, 1, 2)
	require.Nil(t, ferr)
	require.Len(t, res.Statements, 1)
	assert.Len(t, res.Statements[0].Rows, 2)
	assert.True(t, res.Statements[0].HasMore)

	// _id is not selectable for this key
	_, ferr = c.AgentQuery(ctx, id, ds.ID, `SELECT _id FROM notes`, 1, 10)
	require.NotNil(t, ferr)
	assert.Equal(t, 403, ferr.Status)

	// denial was audit-logged
	require.Eventually(t, func() bool {
		logs, err := c.Catalog.ListLogs(ctx, orgID, 10)
		return err == nil && len(logs) == 1 && logs[0].Kind == "query.denied"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAgentQueryDDL(t *testing.T) {
	c, orgID := newTestControllers(t)
	ctx := context.Background()

	ds, ferr := c.CreateDatastore(ctx, orgID, "main")
	require.Nil(t, ferr)
	_, ferr = c.ApplySchemaChange(ctx, orgID, ds.ID, schema.Op{Type: schema.OpAddTable, Table: "notes"})
	require.Nil(t, ferr)

	id := agentWith(t, c, orgID,
		grant{permission.ActionSchemaChange, permission.TableTargetID(ds.ID, "notes")},
		grant{permission.ActionRowSelect, permission.TableTargetID(ds.ID, "notes")},
		grant{permission.ActionColumnSelect, permission.ColumnTargetID(ds.ID, "notes", "*")},
	)

	res, ferr := c.AgentQuery(ctx, id, ds.ID, `ALTER TABLE notes ADD COLUMN age INTEGER`, 1, 10)
	require.Nil(t, ferr)
	require.Len(t, res.Statements, 1)
	require.NotNil(t, res.Statements[0].Op)
	assert.Equal(t, schema.OpAddColumn, res.Statements[0].Op.Type)

	// the new column target exists and the snapshot followed
	_, snap, ferr := c.GetDatastore(ctx, orgID, ds.ID)
	require.Nil(t, ferr)
	assert.True(t, snap.HasColumn("notes", "age"))
	_, err := c.Catalog.AddMapping(ctx, orgID, id.Key.ID,
		permission.ColumnTargetID(ds.ID, "notes", "age"), permission.ActionColumnSelect)
	require.NoError(t, err)

	// schema changes cannot ride along with other statements
	_, ferr = c.AgentQuery(ctx, id, ds.ID,
		`SELECT age FROM notes; ALTER TABLE notes ADD COLUMN more INTEGER`, 1, 10)
	require.NotNil(t, ferr)

	// a key without schema.change is refused, with the op still classified
	plain := agentWith(t, c, orgID,
		grant{permission.ActionRowSelect, permission.TableTargetID(ds.ID, "notes")})
	_, ferr = c.AgentQuery(ctx, plain, ds.ID, `ALTER TABLE notes ADD COLUMN nope TEXT`, 1, 10)
	require.NotNil(t, ferr)
	assert.Equal(t, 403, ferr.Status)

	// drop column runs end to end for a key holding column.drop
	dropper := agentWith(t, c, orgID,
		grant{permission.ActionSchemaChange, permission.TableTargetID(ds.ID, "notes")},
		grant{permission.ActionColumnDrop, permission.ColumnTargetID(ds.ID, "notes", "age")},
	)
	res, ferr = c.AgentQuery(ctx, dropper, ds.ID, `ALTER TABLE notes DROP COLUMN age`, 1, 10)
	require.Nil(t, ferr)
	require.Len(t, res.Statements, 1)
	require.NotNil(t, res.Statements[0].Op)
	assert.Equal(t, schema.OpDropColumn, res.Statements[0].Op.Type)

	_, snap, ferr = c.GetDatastore(ctx, orgID, ds.ID)
	require.Nil(t, ferr)
	assert.False(t, snap.HasColumn("notes", "age"))
}

func TestAgentListAndVisibility(t *testing.T) {
	c, orgID := newTestControllers(t)
	ctx := context.Background()

	dsA, ferr := c.CreateDatastore(ctx, orgID, "alpha")
	require.Nil(t, ferr)
	_, ferr = c.CreateDatastore(ctx, orgID, "beta")
	require.Nil(t, ferr)
	_, ferr = c.ApplySchemaChange(ctx, orgID, dsA.ID, schema.Op{Type: schema.OpAddTable, Table: "notes"})
	require.Nil(t, ferr)
	_, ferr = c.ApplySchemaChange(ctx, orgID, dsA.ID,
		schema.Op{Type: schema.OpAddColumn, Table: "notes", Column: "title", DBType: "TEXT"})
	require.Nil(t, ferr)

	id := agentWith(t, c, orgID,
		grant{permission.ActionDatastoreList, permission.DatastoreTargetID(dsA.ID)},
		grant{permission.ActionTableList, permission.TableTargetID(dsA.ID, "notes")},
		grant{permission.ActionColumnSelect, permission.ColumnTargetID(dsA.ID, "notes", "title")},
	)

	list, ferr := c.AgentListDatastores(ctx, id)
	require.Nil(t, ferr)
	require.Len(t, list, 1)
	assert.Equal(t, "alpha", list[0].Name)

	snap, ferr := c.AgentListTables(ctx, id, dsA.ID)
	require.Nil(t, ferr)
	assert.Equal(t, []string{"notes"}, snap.TableNames())
	assert.Equal(t, []string{"title"}, snap.ColumnNames("notes"))

	// no grant on the global create action
	_, ferr = c.AgentCreateDatastore(ctx, id, "gamma")
	require.NotNil(t, ferr)
	assert.Equal(t, 403, ferr.Status)

	creator := agentWith(t, c, orgID,
		grant{permission.ActionDatastoreCreate, permission.DatastoreTargetID(permission.Wildcard)})
	created, ferr := c.AgentCreateDatastore(ctx, creator, "gamma")
	require.Nil(t, ferr)
	assert.NotEmpty(t, created.ID)
}

func TestResolveKey(t *testing.T) {
	c, _ := newTestControllers(t)
	ctx := context.Background()

	_, ferr := c.ResolveKey(ctx, "")
	require.NotNil(t, ferr)
	assert.Equal(t, 403, ferr.Status)

	_, ferr = c.ResolveKey(ctx, "bogus")
	require.NotNil(t, ferr)
	assert.Equal(t, 403, ferr.Status)
}
