package schema

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/fault"
)

// CatalogSync commits the post-change snapshot and its permission targets in
// one catalog transaction.
type CatalogSync interface {
	ApplySchemaSync(ctx context.Context, orgID, dsID string, op Op, snap *datastore.Snapshot) error
}

// Transactor runs one schema change across the two stores. The datastore file
// commits first; if the catalog then refuses, the file change is compensated
// with the inverse statement so the two stay aligned.
type Transactor struct {
	sync CatalogSync
	log  *zap.SugaredLogger
}

// NewTransactor wires a transactor to the catalog.
func NewTransactor(sync CatalogSync, log *zap.SugaredLogger) *Transactor {
	return &Transactor{sync: sync, log: log}
}

// Apply validates and executes op against an open datastore connection, then
// re-introspects the file and syncs the catalog. The returned snapshot is the
// post-change shape.
func (t *Transactor) Apply(ctx context.Context, db *sql.DB, orgID, dsID string, op Op) (*datastore.Snapshot, *fault.Entry) {
	if ferr := op.Validate(); ferr != nil {
		return nil, ferr
	}

	if _, err := db.ExecContext(ctx, op.DDL()); err != nil {
		return nil, ddlFault(err)
	}

	snap, err := datastore.Introspect(ctx, db)
	if err != nil {
		t.compensate(ctx, db, op)
		return nil, fault.Engine("schema.introspect", err)
	}

	if err := t.sync.ApplySchemaSync(ctx, orgID, dsID, op, snap); err != nil {
		t.compensate(ctx, db, op)
		return nil, fault.Engine("schema.sync", err)
	}
	return snap, nil
}

// compensate undoes the already-committed file change after a catalog
// failure. Terminal operations have no inverse; the mismatch is logged and
// the next introspection heals the snapshot.
func (t *Transactor) compensate(ctx context.Context, db *sql.DB, op Op) {
	inverse, ok := op.InverseDDL()
	if !ok {
		t.log.Errorw("schema change not compensatable", "op", string(op.Type), "table", op.Table)
		return
	}
	if _, err := db.ExecContext(ctx, inverse); err != nil {
		t.log.Errorw("schema compensation failed", "op", string(op.Type), "table", op.Table, "error", err)
	}
}

func ddlFault(err error) *fault.Entry {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "already exists"):
		return fault.Conflict("schema.exists", "table or column already exists")
	case strings.Contains(msg, "no such table"):
		return fault.NotFound("schema.table", "table not found")
	case strings.Contains(msg, "no such column"):
		return fault.NotFound("schema.column", "column not found")
	case strings.Contains(msg, "duplicate column"):
		return fault.Conflict("schema.exists", "table or column already exists")
	}
	return fault.Engine("schema.ddl", err)
}
