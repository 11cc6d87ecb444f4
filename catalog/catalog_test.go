package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/permission"
	"github.com/eclipticdb/ecliptic/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSeedsVocabulary(t *testing.T) {
	s := newTestStore(t)

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT count(*) FROM permission_action`).Scan(&n))
	assert.Equal(t, 19, n)

	require.NoError(t, s.DB().QueryRow(
		`SELECT count(*) FROM permission_target WHERE organization_id IS NULL`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestOrganizationIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	orgA, err := s.CreateOrganization(ctx, "acme")
	require.NoError(t, err)
	orgB, err := s.CreateOrganization(ctx, "globex")
	require.NoError(t, err)

	// the same display name in two organizations is fine
	dsA, err := s.CreateDatastore(ctx, orgA.ID, "main")
	require.NoError(t, err)
	dsB, err := s.CreateDatastore(ctx, orgB.ID, "main")
	require.NoError(t, err)
	assert.NotEqual(t, dsA.ExternalID, dsB.ExternalID)

	// but not twice in the same one
	_, err = s.CreateDatastore(ctx, orgA.ID, "main")
	assert.ErrorIs(t, err, ErrDuplicate)

	// cross-organization lookups miss
	_, err = s.GetDatastore(ctx, orgB.ID, dsA.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	listA, err := s.ListDatastores(ctx, orgA.ID)
	require.NoError(t, err)
	require.Len(t, listA, 1)
	assert.Equal(t, dsA.ID, listA[0].ID)
}

func TestCreateDatastoreInsertsWildcardTargets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org, err := s.CreateOrganization(ctx, "acme")
	require.NoError(t, err)
	ds, err := s.CreateDatastore(ctx, org.ID, "main")
	require.NoError(t, err)

	targets, err := s.ListTargets(ctx, org.ID)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, tr := range targets {
		ids[tr.ID] = true
	}
	assert.True(t, ids[permission.DatastoreTargetID(ds.ID)])
	assert.True(t, ids[permission.TableTargetID(ds.ID, "*")])
	assert.True(t, ids[permission.ColumnTargetID(ds.ID, "*", "*")])
}

func TestDeleteDatastoreCleansTargetsAndMappings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org, err := s.CreateOrganization(ctx, "acme")
	require.NoError(t, err)
	ds, err := s.CreateDatastore(ctx, org.ID, "main")
	require.NoError(t, err)
	key, err := s.CreateMCPKey(ctx, org.ID, "agent")
	require.NoError(t, err)
	_, err = s.AddMapping(ctx, org.ID, key.ID,
		permission.DatastoreTargetID(ds.ID), permission.ActionDatastoreList)
	require.NoError(t, err)

	require.NoError(t, s.DeleteDatastore(ctx, org.ID, ds.ID))

	var n int
	require.NoError(t, s.DB().QueryRow(
		`SELECT count(*) FROM permission_target WHERE id LIKE 'datastore:' || ? || '%'`, ds.ID).Scan(&n))
	assert.Zero(t, n)
	grants, err := s.LoadGrants(ctx, key.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	assert.ErrorIs(t, s.DeleteDatastore(ctx, org.ID, ds.ID), ErrNotFound)
}

func TestApplySchemaSyncTargets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org, err := s.CreateOrganization(ctx, "acme")
	require.NoError(t, err)
	ds, err := s.CreateDatastore(ctx, org.ID, "main")
	require.NoError(t, err)
	key, err := s.CreateMCPKey(ctx, org.ID, "agent")
	require.NoError(t, err)

	snap := datastore.EmptySnapshot()
	snap.Tables["notes"] = datastore.Table{Columns: map[string]datastore.Column{
		"_id": {Name: "_id", DBType: datastore.TypeInteger},
	}}

	require.NoError(t, s.ApplySchemaSync(ctx, org.ID, ds.ID,
		schema.Op{Type: schema.OpAddTable, Table: "notes"}, snap))

	// the cached snapshot follows
	got, err := s.GetDatastore(ctx, org.ID, ds.ID)
	require.NoError(t, err)
	sn, err := got.Snapshot()
	require.NoError(t, err)
	assert.True(t, sn.HasTable("notes"))

	// grants attach to the new table target
	_, err = s.AddMapping(ctx, org.ID, key.ID,
		permission.TableTargetID(ds.ID, "notes"), permission.ActionRowSelect)
	require.NoError(t, err)

	// renaming the table carries targets and mappings along
	require.NoError(t, s.ApplySchemaSync(ctx, org.ID, ds.ID,
		schema.Op{Type: schema.OpRenameTable, Table: "notes", NewName: "memos"}, snap))

	grants, err := s.LoadGrants(ctx, key.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, permission.TableTargetID(ds.ID, "memos"), grants[0].Target)

	// dropping the table removes them
	require.NoError(t, s.ApplySchemaSync(ctx, org.ID, ds.ID,
		schema.Op{Type: schema.OpDropTable, Table: "memos"}, datastore.EmptySnapshot()))
	grants, err = s.LoadGrants(ctx, key.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestAddMappingValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org, err := s.CreateOrganization(ctx, "acme")
	require.NoError(t, err)
	other, err := s.CreateOrganization(ctx, "globex")
	require.NoError(t, err)
	ds, err := s.CreateDatastore(ctx, org.ID, "main")
	require.NoError(t, err)
	key, err := s.CreateMCPKey(ctx, org.ID, "agent")
	require.NoError(t, err)

	// row.select cannot attach to a datastore target
	_, err = s.AddMapping(ctx, org.ID, key.ID,
		permission.DatastoreTargetID(ds.ID), permission.ActionRowSelect)
	assert.Error(t, err)

	// another organization cannot grant on this target
	_, err = s.AddMapping(ctx, other.ID, key.ID,
		permission.DatastoreTargetID(ds.ID), permission.ActionDatastoreList)
	assert.ErrorIs(t, err, ErrNotFound)

	// global wildcard targets are grantable by anyone
	m, err := s.AddMapping(ctx, org.ID, key.ID,
		permission.DatastoreTargetID(permission.Wildcard), permission.ActionDatastoreList)
	require.NoError(t, err)

	_, err = s.AddMapping(ctx, org.ID, key.ID,
		permission.DatastoreTargetID(permission.Wildcard), permission.ActionDatastoreList)
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, s.DeleteMapping(ctx, org.ID, m.ID))
	assert.ErrorIs(t, s.DeleteMapping(ctx, org.ID, m.ID), ErrNotFound)
}

func TestResolveSecret(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org, err := s.CreateOrganization(ctx, "acme")
	require.NoError(t, err)
	key, err := s.CreateMCPKey(ctx, org.ID, "agent")
	require.NoError(t, err)
	require.NotEmpty(t, key.Secret)

	got, err := s.ResolveSecret(ctx, key.Secret)
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
	assert.Empty(t, got.Secret)

	_, err = s.ResolveSecret(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org, err := s.CreateOrganization(ctx, "acme")
	require.NoError(t, err)
	u, err := s.CreateUser(ctx, org.ID, "a@acme.test", "A")
	require.NoError(t, err)

	sess, err := s.CreateSession(ctx, u.ID, time.Hour)
	require.NoError(t, err)
	got, err := s.ResolveSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)

	expired, err := s.CreateSession(ctx, u.ID, -time.Minute)
	require.NoError(t, err)
	_, err = s.ResolveSession(ctx, expired.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuditWriter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org, err := s.CreateOrganization(ctx, "acme")
	require.NoError(t, err)

	s.Audit(LogEntry{OrganizationID: org.ID, Kind: "query.denied", Message: "DROP TABLE notes"})

	require.Eventually(t, func() bool {
		logs, err := s.ListLogs(ctx, org.ID, 10)
		return err == nil && len(logs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	logs, err := s.ListLogs(ctx, org.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, "query.denied", logs[0].Kind)
	assert.Equal(t, "DROP TABLE notes", logs[0].Message)
}
