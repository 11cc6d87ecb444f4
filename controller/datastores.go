package controller

import (
	"context"
	"strings"

	"github.com/eclipticdb/ecliptic/catalog"
	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/fault"
	"github.com/eclipticdb/ecliptic/rows"
	"github.com/eclipticdb/ecliptic/schema"
)

func validName(name string) *fault.Entry {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return fault.Input("datastore.name", "name must be 1 to 64 characters")
	}
	return nil
}

// CreateDatastore registers the catalog row (with its wildcard permission
// targets) and creates the backing file. If the file cannot be created the
// catalog row is rolled back.
func (c *Controllers) CreateDatastore(ctx context.Context, orgID, name string) (*catalog.Datastore, *fault.Entry) {
	if ferr := validName(name); ferr != nil {
		return nil, ferr
	}

	ds, err := c.Catalog.CreateDatastore(ctx, orgID, strings.TrimSpace(name))
	if ferr := mapErr(err, "datastore.create", "datastore"); ferr != nil {
		return nil, ferr
	}

	var stack fault.Stack
	stack.Push(func(ctx context.Context) ([]fault.Rollback, *fault.Entry) {
		if err := c.Catalog.DeleteDatastore(ctx, orgID, ds.ID); err != nil {
			return nil, fault.Engine("datastore.create.rollback", err)
		}
		return nil, nil
	})

	if _, ferr := c.Files.CreateFile(ctx, ds.ExternalID); ferr != nil {
		for _, msg := range fault.Unwind(ctx, stack.Funcs()) {
			c.Log.Errorw("create datastore rollback", "error", msg)
		}
		return nil, ferr
	}
	return ds, nil
}

// ListDatastores returns the organization's datastores.
func (c *Controllers) ListDatastores(ctx context.Context, orgID string) ([]*catalog.Datastore, *fault.Entry) {
	out, err := c.Catalog.ListDatastores(ctx, orgID)
	if ferr := mapErr(err, "datastore.list", "datastore"); ferr != nil {
		return nil, ferr
	}
	return out, nil
}

// GetDatastore returns one datastore row and its decoded snapshot.
func (c *Controllers) GetDatastore(ctx context.Context, orgID, dsID string) (*catalog.Datastore, *datastore.Snapshot, *fault.Entry) {
	ds, err := c.Catalog.GetDatastore(ctx, orgID, dsID)
	if ferr := mapErr(err, "datastore", "datastore"); ferr != nil {
		return nil, nil, ferr
	}
	snap, err := ds.Snapshot()
	if err != nil {
		return nil, nil, fault.Internal("datastore.snapshot", err)
	}
	return ds, snap, nil
}

// RenameDatastore changes the display name; the file never moves.
func (c *Controllers) RenameDatastore(ctx context.Context, orgID, dsID, newName string) *fault.Entry {
	if ferr := validName(newName); ferr != nil {
		return ferr
	}
	return mapErr(c.Catalog.RenameDatastore(ctx, orgID, dsID, strings.TrimSpace(newName)),
		"datastore.rename", "datastore")
}

// DropDatastore deletes the catalog row first and the file second. A file
// that survives a failed delete is an orphan to sweep up, never a row
// pointing at nothing.
func (c *Controllers) DropDatastore(ctx context.Context, orgID, dsID string) *fault.Entry {
	ds, err := c.Catalog.GetDatastore(ctx, orgID, dsID)
	if ferr := mapErr(err, "datastore", "datastore"); ferr != nil {
		return ferr
	}
	if ferr := mapErr(c.Catalog.DeleteDatastore(ctx, orgID, dsID), "datastore.drop", "datastore"); ferr != nil {
		return ferr
	}
	if ferr := c.Files.DropFile(ctx, ds.ExternalID); ferr != nil {
		c.Log.Errorw("drop datastore left orphan file",
			"datastore", dsID, "file", ds.ExternalID, "error", ferr.Error())
	}
	return nil
}

// ApplySchemaChange runs one typed schema operation and returns the
// post-change snapshot.
func (c *Controllers) ApplySchemaChange(ctx context.Context, orgID, dsID string, op schema.Op) (*datastore.Snapshot, *fault.Entry) {
	ds, db, _, ferr := c.openDatastore(ctx, orgID, dsID)
	if ferr != nil {
		return nil, ferr
	}
	return c.Schema.Apply(ctx, db, orgID, ds.ID, op)
}

// GetTableData reads one page of a table.
func (c *Controllers) GetTableData(ctx context.Context, orgID, dsID, table string, sq rows.SelectQuery) ([]rows.Row, bool, *fault.Entry) {
	_, db, snap, ferr := c.openDatastore(ctx, orgID, dsID)
	if ferr != nil {
		return nil, false, ferr
	}
	return rows.Select(ctx, db, snap, table, sq)
}

// InsertRows bulk-inserts rows, all or nothing, and returns them with keys.
func (c *Controllers) InsertRows(ctx context.Context, orgID, dsID, table string, rowsIn []map[string]any) ([]rows.Row, *fault.Entry) {
	_, db, snap, ferr := c.openDatastore(ctx, orgID, dsID)
	if ferr != nil {
		return nil, ferr
	}
	return rows.Insert(ctx, db, snap, table, rowsIn)
}

// UpdateRows updates the rows matching the filters and returns them.
func (c *Controllers) UpdateRows(ctx context.Context, orgID, dsID, table string, set map[string]any, filters []rows.Filter) ([]rows.Row, *fault.Entry) {
	_, db, snap, ferr := c.openDatastore(ctx, orgID, dsID)
	if ferr != nil {
		return nil, ferr
	}
	return rows.Update(ctx, db, snap, table, set, filters)
}

// DeleteRows deletes rows by key.
func (c *Controllers) DeleteRows(ctx context.Context, orgID, dsID, table string, keys []int64) (int64, *fault.Entry) {
	_, db, snap, ferr := c.openDatastore(ctx, orgID, dsID)
	if ferr != nil {
		return 0, ferr
	}
	return rows.Delete(ctx, db, snap, table, keys)
}
