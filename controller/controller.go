// Package controller ties the catalog, the datastore files, and the
// permission checker into the operations the HTTP and MCP surfaces expose.
// Controllers return fault entries; transports translate those to envelopes.
package controller

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eclipticdb/ecliptic/catalog"
	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/fault"
	"github.com/eclipticdb/ecliptic/schema"
)

// Controllers bundles the shared backends behind every operation.
type Controllers struct {
	Catalog *catalog.Store
	Files   *datastore.Manager
	Schema  *schema.Transactor
	Log     *zap.SugaredLogger
}

// New wires the controllers. The schema transactor syncs into the same
// catalog store.
func New(cat *catalog.Store, files *datastore.Manager, log *zap.SugaredLogger) *Controllers {
	return &Controllers{
		Catalog: cat,
		Files:   files,
		Schema:  schema.NewTransactor(cat, log),
		Log:     log,
	}
}

// mapErr translates catalog sentinels into transport faults.
func mapErr(err error, code, what string) *fault.Entry {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, catalog.ErrNotFound):
		return fault.NotFound(code+".not_found", what+" not found")
	case errors.Is(err, catalog.ErrDuplicate):
		return fault.Conflict(code+".duplicate", what+" already exists")
	}
	return fault.Engine(code, err)
}

// openDatastore resolves a datastore row to its open connection and decoded
// snapshot.
func (c *Controllers) openDatastore(ctx context.Context, orgID, dsID string) (*catalog.Datastore, *sql.DB, *datastore.Snapshot, *fault.Entry) {
	ds, err := c.Catalog.GetDatastore(ctx, orgID, dsID)
	if ferr := mapErr(err, "datastore", "datastore"); ferr != nil {
		return nil, nil, nil, ferr
	}
	db, err := c.Files.Pool().Open(ds.ExternalID)
	if err != nil {
		return nil, nil, nil, fault.Engine("datastore.open", err)
	}
	snap, err := ds.Snapshot()
	if err != nil {
		return nil, nil, nil, fault.Internal("datastore.snapshot", err)
	}
	return ds, db, snap, nil
}
