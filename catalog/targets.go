package catalog

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/permission"
	"github.com/eclipticdb/ecliptic/schema"
)

// TargetRow is one addressable permission target.
type TargetRow struct {
	ID             string                `json:"id"`
	OrganizationID string                `json:"organization_id,omitempty"`
	Type           permission.TargetType `json:"type"`
}

func insertTarget(ctx context.Context, tx *sql.Tx, id, orgID string, tt permission.TargetType) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO permission_target (id, organization_id, target_type) VALUES (?, ?, ?)`,
		id, orgID, string(tt))
	return errors.Wrapf(err, "catalog: insert target %s", id)
}

// deleteTargetsByPrefix removes the exact target and every descendant.
// Mappings referencing them cascade away.
func deleteTargetsByPrefix(ctx context.Context, tx *sql.Tx, prefix string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM permission_target WHERE id = ? OR id LIKE ? || '.%'`, prefix, prefix)
	return errors.Wrapf(err, "catalog: delete targets %s", prefix)
}

// renameTargetPrefix rewrites the exact target id and every descendant id.
// Mapping rows follow by ON UPDATE CASCADE.
func renameTargetPrefix(ctx context.Context, tx *sql.Tx, oldPrefix, newPrefix string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE permission_target
		SET id = ? || substr(id, length(?) + 1)
		WHERE id = ? OR id LIKE ? || '.%'`,
		newPrefix, oldPrefix, oldPrefix, oldPrefix)
	return errors.Wrapf(err, "catalog: rename targets %s", oldPrefix)
}

// ListTargets returns the organization's targets plus the global wildcard
// rows, ordered by id.
func (s *Store) ListTargets(ctx context.Context, orgID string) ([]TargetRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(organization_id, ''), target_type
		FROM permission_target
		WHERE organization_id = ? OR organization_id IS NULL
		ORDER BY id`, orgID)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: list targets")
	}
	defer rows.Close() //nolint:errcheck

	var out []TargetRow
	for rows.Next() {
		var t TargetRow
		var tt string
		if err := rows.Scan(&t.ID, &t.OrganizationID, &tt); err != nil {
			return nil, errors.Wrap(err, "catalog: list targets")
		}
		t.Type = permission.TargetType(tt)
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "catalog: list targets")
}

// ApplySchemaSync commits the post-change snapshot and the target rows a
// schema operation implies in one transaction. Either the catalog reflects
// the already-applied file change completely, or not at all.
func (s *Store) ApplySchemaSync(ctx context.Context, orgID, dsID string, op schema.Op, snap *datastore.Snapshot) error {
	schemaJSON, err := snap.JSON()
	if err != nil {
		return errors.Wrap(err, "catalog: encode snapshot")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "catalog: schema sync")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE datastore SET schema_json = ?, updated_at = ? WHERE organization_id = ? AND id = ?`,
		schemaJSON, nowStr(), orgID, dsID)
	if err != nil {
		return errors.Wrap(err, "catalog: schema sync")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "catalog: schema sync")
	}
	if n == 0 {
		return ErrNotFound
	}

	if err := syncTargets(ctx, tx, orgID, dsID, op); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "catalog: schema sync")
}

func syncTargets(ctx context.Context, tx *sql.Tx, orgID, dsID string, op schema.Op) error {
	switch op.Type {
	case schema.OpAddTable:
		if err := insertTarget(ctx, tx,
			permission.TableTargetID(dsID, op.Table), orgID, permission.TypeTable); err != nil {
			return err
		}
		// the synthetic key column plus the per-table column wildcard
		if err := insertTarget(ctx, tx,
			permission.ColumnTargetID(dsID, op.Table, "_id"), orgID, permission.TypeColumn); err != nil {
			return err
		}
		return insertTarget(ctx, tx,
			permission.ColumnTargetID(dsID, op.Table, permission.Wildcard), orgID, permission.TypeColumn)

	case schema.OpDropTable:
		return deleteTargetsByPrefix(ctx, tx, permission.TableTargetID(dsID, op.Table))

	case schema.OpRenameTable:
		return renameTargetPrefix(ctx, tx,
			permission.TableTargetID(dsID, op.Table),
			permission.TableTargetID(dsID, op.NewName))

	case schema.OpAddColumn:
		return insertTarget(ctx, tx,
			permission.ColumnTargetID(dsID, op.Table, op.Column), orgID, permission.TypeColumn)

	case schema.OpDropColumn:
		return deleteTargetsByPrefix(ctx, tx, permission.ColumnTargetID(dsID, op.Table, op.Column))

	case schema.OpRenameColumn:
		return renameTargetPrefix(ctx, tx,
			permission.ColumnTargetID(dsID, op.Table, op.Column),
			permission.ColumnTargetID(dsID, op.Table, op.NewName))
	}
	return errors.Errorf("catalog: unknown schema op %q", op.Type)
}
