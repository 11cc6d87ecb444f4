package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/permission"
)

// Datastore is one catalog row describing a datastore file. ExternalID is the
// filename on disk; Name is the tenant-chosen display name, unique per
// organization. SchemaJSON is the cached snapshot, re-derived from the file
// after every schema change.
type Datastore struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	ExternalID     string    `json:"external_id"`
	SchemaJSON     string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot decodes the cached schema.
func (d *Datastore) Snapshot() (*datastore.Snapshot, error) {
	return datastore.ParseSnapshot(d.SchemaJSON)
}

const dsColumns = `id, organization_id, name, external_id, schema_json, created_at, updated_at`

func scanDatastore(row interface{ Scan(...any) error }) (*Datastore, error) {
	var d Datastore
	var created, updated string
	err := row.Scan(&d.ID, &d.OrganizationID, &d.Name, &d.ExternalID, &d.SchemaJSON, &created, &updated)
	if err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(created)
	d.UpdatedAt = parseTime(updated)
	return &d, nil
}

// CreateDatastore inserts a datastore row and, in the same transaction, its
// three wildcard-bearing permission targets. The caller creates the file.
func (s *Store) CreateDatastore(ctx context.Context, orgID, name string) (*Datastore, error) {
	now := time.Now().UTC()
	d := &Datastore{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
		ExternalID:     uuid.NewString() + ".db",
		SchemaJSON:     `{"tables":{}}`,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: create datastore")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO datastore (`+dsColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OrganizationID, d.Name, d.ExternalID, d.SchemaJSON,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if isUniqueErr(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: create datastore")
	}

	targets := []struct {
		id string
		tt permission.TargetType
	}{
		{permission.DatastoreTargetID(d.ID), permission.TypeDatastore},
		{permission.TableTargetID(d.ID, permission.Wildcard), permission.TypeTable},
		{permission.ColumnTargetID(d.ID, permission.Wildcard, permission.Wildcard), permission.TypeColumn},
	}
	for _, t := range targets {
		if err := insertTarget(ctx, tx, t.id, orgID, t.tt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "catalog: create datastore")
	}
	return d, nil
}

// GetDatastore fetches one datastore row, scoped to the organization.
func (s *Store) GetDatastore(ctx context.Context, orgID, id string) (*Datastore, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dsColumns+` FROM datastore WHERE organization_id = ? AND id = ?`, orgID, id)
	d, err := scanDatastore(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: get datastore")
	}
	return d, nil
}

// GetDatastoreByName fetches one datastore row by display name.
func (s *Store) GetDatastoreByName(ctx context.Context, orgID, name string) (*Datastore, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dsColumns+` FROM datastore WHERE organization_id = ? AND name = ?`, orgID, name)
	d, err := scanDatastore(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: get datastore by name")
	}
	return d, nil
}

// ListDatastores returns the organization's datastores ordered by name.
func (s *Store) ListDatastores(ctx context.Context, orgID string) ([]*Datastore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dsColumns+` FROM datastore WHERE organization_id = ? ORDER BY name`, orgID)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: list datastores")
	}
	defer rows.Close() //nolint:errcheck

	out := []*Datastore{}
	for rows.Next() {
		d, err := scanDatastore(rows)
		if err != nil {
			return nil, errors.Wrap(err, "catalog: list datastores")
		}
		out = append(out, d)
	}
	return out, errors.Wrap(rows.Err(), "catalog: list datastores")
}

// RenameDatastore changes the display name. The external id, and therefore
// the file on disk, never changes.
func (s *Store) RenameDatastore(ctx context.Context, orgID, id, newName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE datastore SET name = ?, updated_at = ? WHERE organization_id = ? AND id = ?`,
		newName, nowStr(), orgID, id)
	if isUniqueErr(err) {
		return ErrDuplicate
	}
	if err != nil {
		return errors.Wrap(err, "catalog: rename datastore")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "catalog: rename datastore")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDatastore removes the row and every permission target under it in one
// transaction. Mappings on those targets go with them by cascade. The caller
// deletes the file afterwards; an orphaned file is recoverable, a dangling
// catalog row is not.
func (s *Store) DeleteDatastore(ctx context.Context, orgID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "catalog: delete datastore")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`DELETE FROM datastore WHERE organization_id = ? AND id = ?`, orgID, id)
	if err != nil {
		return errors.Wrap(err, "catalog: delete datastore")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "catalog: delete datastore")
	}
	if n == 0 {
		return ErrNotFound
	}

	if err := deleteTargetsByPrefix(ctx, tx, permission.DatastoreTargetID(id)); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "catalog: delete datastore")
}

// UpdateSchemaJSON replaces the cached snapshot without touching targets.
// Row-only changes keep the schema as is; this is for callers that re-derive
// the snapshot outside a schema-change transaction.
func (s *Store) UpdateSchemaJSON(ctx context.Context, orgID, id, schemaJSON string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE datastore SET schema_json = ?, updated_at = ? WHERE organization_id = ? AND id = ?`,
		schemaJSON, nowStr(), orgID, id)
	if err != nil {
		return errors.Wrap(err, "catalog: update schema")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "catalog: update schema")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
