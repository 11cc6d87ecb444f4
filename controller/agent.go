package controller

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/eclipticdb/ecliptic/catalog"
	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/fault"
	"github.com/eclipticdb/ecliptic/permission"
	"github.com/eclipticdb/ecliptic/rows"
	"github.com/eclipticdb/ecliptic/schema"
)

// AgentIdentity is one authenticated MCP key with its projected grants.
type AgentIdentity struct {
	Key   *catalog.MCPKey
	Perms *permission.Set
}

// ResolveKey authenticates an MCP secret and loads its permission set.
func (c *Controllers) ResolveKey(ctx context.Context, secret string) (*AgentIdentity, *fault.Entry) {
	if secret == "" {
		return nil, fault.Denied("mcp.key.missing", "an MCP key is required")
	}
	key, err := c.Catalog.ResolveSecret(ctx, secret)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fault.Denied("mcp.key.invalid", "invalid MCP key")
	}
	if err != nil {
		return nil, fault.Engine("mcp.key", err)
	}
	grants, err := c.Catalog.LoadGrants(ctx, key.ID)
	if err != nil {
		return nil, fault.Engine("mcp.key.grants", err)
	}
	return &AgentIdentity{Key: key, Perms: permission.Parse(grants)}, nil
}

// AgentDatastore is the agent-visible description of one datastore.
type AgentDatastore struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AgentCreateDatastore creates a datastore on behalf of an agent holding the
// global create action.
func (c *Controllers) AgentCreateDatastore(ctx context.Context, id *AgentIdentity, name string) (*AgentDatastore, *fault.Entry) {
	if !id.Perms.GrantedGlobal(permission.ActionDatastoreCreate) {
		return nil, c.denied(id, "datastore.create", "create datastore "+name)
	}
	ds, ferr := c.CreateDatastore(ctx, id.Key.OrganizationID, name)
	if ferr != nil {
		return nil, ferr
	}
	return &AgentDatastore{ID: ds.ID, Name: ds.Name}, nil
}

// AgentListDatastores lists the datastores the key may see.
func (c *Controllers) AgentListDatastores(ctx context.Context, id *AgentIdentity) ([]AgentDatastore, *fault.Entry) {
	all, ferr := c.ListDatastores(ctx, id.Key.OrganizationID)
	if ferr != nil {
		return nil, ferr
	}
	out := []AgentDatastore{}
	for _, ds := range all {
		if id.Perms.GrantedDatastore(ds.ID, permission.ActionDatastoreList) {
			out = append(out, AgentDatastore{ID: ds.ID, Name: ds.Name})
		}
	}
	return out, nil
}

// AgentRenameDatastore renames a datastore the key controls.
func (c *Controllers) AgentRenameDatastore(ctx context.Context, id *AgentIdentity, dsID, newName string) *fault.Entry {
	if !id.Perms.GrantedDatastore(dsID, permission.ActionDatastoreRename) {
		return c.denied(id, "datastore.rename", "rename datastore "+dsID)
	}
	return c.RenameDatastore(ctx, id.Key.OrganizationID, dsID, newName)
}

// AgentDropDatastore drops a datastore the key controls.
func (c *Controllers) AgentDropDatastore(ctx context.Context, id *AgentIdentity, dsID string) *fault.Entry {
	if !id.Perms.GrantedDatastore(dsID, permission.ActionDatastoreDrop) {
		return c.denied(id, "datastore.drop", "drop datastore "+dsID)
	}
	return c.DropDatastore(ctx, id.Key.OrganizationID, dsID)
}

// AgentListTables returns the schema the key may see: listable tables with
// their selectable columns.
func (c *Controllers) AgentListTables(ctx context.Context, id *AgentIdentity, dsID string) (*datastore.Snapshot, *fault.Entry) {
	_, snap, ferr := c.GetDatastore(ctx, id.Key.OrganizationID, dsID)
	if ferr != nil {
		return nil, ferr
	}
	return permission.FilterSchema(snap, id.Perms, dsID), nil
}

// StatementResult is the outcome of one executed statement.
type StatementResult struct {
	Rows         []rows.Row `json:"rows,omitempty"`
	HasMore      bool       `json:"has_more,omitempty"`
	RowsAffected int64      `json:"rows_affected,omitempty"`
	Op           *schema.Op `json:"op,omitempty"`
}

// QueryResult is the outcome of one agent query.
type QueryResult struct {
	Statements []StatementResult `json:"statements"`
}

// AgentQuery checks raw SQL against the key's grants and executes it. Every
// statement must pass before any runs. A schema-changing statement must be
// the only statement and goes through the transactor so the catalog stays
// aligned. SELECT pagination is forced server-side.
func (c *Controllers) AgentQuery(ctx context.Context, id *AgentIdentity, dsID, sqlStr string, page, pageSize int) (*QueryResult, *fault.Entry) {
	ds, db, snap, ferr := c.openDatastore(ctx, id.Key.OrganizationID, dsID)
	if ferr != nil {
		return nil, ferr
	}

	results := permission.CheckSQL(sqlStr, id.Perms, dsID, snap)
	if len(results) == 0 {
		return nil, fault.Input("query.empty", "no statements to run")
	}
	if !permission.AllAllowed(results) {
		return nil, c.denied(id, "query.denied", sqlStr)
	}

	ddl := 0
	for _, r := range results {
		if r.IsDDL {
			ddl++
		}
	}
	if ddl > 0 && len(results) > 1 {
		return nil, fault.Input("query.ddl.batch", "a schema change must be the only statement")
	}

	if ddl == 1 {
		op := results[0].Op
		if _, ferr := c.Schema.Apply(ctx, db, id.Key.OrganizationID, ds.ID, *op); ferr != nil {
			return nil, ferr
		}
		return &QueryResult{Statements: []StatementResult{{Op: op}}}, nil
	}

	pageSize = rows.ClampPageSize(pageSize)
	if page < 1 {
		page = 1
	}
	offset := int64((page - 1) * pageSize)

	out := &QueryResult{}
	for _, r := range results {
		res, ferr := c.runStatement(ctx, db, r.SQL, int64(pageSize), offset)
		if ferr != nil {
			return nil, ferr
		}
		out.Statements = append(out.Statements, res)
	}
	return out, nil
}

type dbExecer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func isSelect(s string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s)), "SELECT")
}

func (c *Controllers) runStatement(ctx context.Context, db dbExecer, sqlStr string, pageSize, offset int64) (StatementResult, *fault.Entry) {
	if isSelect(sqlStr) {
		// probe one past the page to answer has_more without counting
		paged := permission.Paginate(sqlStr, pageSize+1, offset)
		rs, err := db.QueryContext(ctx, paged)
		if err != nil {
			return StatementResult{}, fault.Engine("query.select", err)
		}
		defer rs.Close() //nolint:errcheck

		scanned, ferr := rows.ScanRows(rs)
		if ferr != nil {
			return StatementResult{}, ferr
		}
		hasMore := int64(len(scanned)) > pageSize
		if hasMore {
			scanned = scanned[:pageSize]
		}
		return StatementResult{Rows: scanned, HasMore: hasMore}, nil
	}

	res, err := db.ExecContext(ctx, sqlStr)
	if err != nil {
		return StatementResult{}, fault.Engine("query.exec", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return StatementResult{}, fault.Engine("query.exec", err)
	}
	return StatementResult{RowsAffected: n}, nil
}

// denied audit-logs a refused agent action and returns the uniform fault.
func (c *Controllers) denied(id *AgentIdentity, kind, message string) *fault.Entry {
	c.Catalog.Audit(catalog.LogEntry{
		OrganizationID: id.Key.OrganizationID,
		MCPKeyID:       id.Key.ID,
		Kind:           kind,
		Message:        message,
	})
	return fault.Denied("permission.denied", "permission denied")
}
