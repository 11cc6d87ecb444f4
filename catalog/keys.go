package catalog

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/eclipticdb/ecliptic/permission"
)

// MCPKey is one agent credential. The secret is shown once at creation and
// presented by the agent on every call.
type MCPKey struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Secret         string    `json:"secret,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Mapping is one (key, target, action) grant.
type Mapping struct {
	ID       string            `json:"id"`
	MCPKeyID string            `json:"mcp_key_id"`
	TargetID string            `json:"target_id"`
	Action   permission.Action `json:"action"`
}

func newSecret() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "eck_" + uuid.NewString()
	}
	return "eck_" + hex.EncodeToString(b)
}

// CreateMCPKey mints a key for an organization.
func (s *Store) CreateMCPKey(ctx context.Context, orgID, name string) (*MCPKey, error) {
	k := &MCPKey{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
		Secret:         newSecret(),
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mcp_key (id, organization_id, name, secret, created_at) VALUES (?, ?, ?, ?, ?)`,
		k.ID, k.OrganizationID, k.Name, k.Secret, k.CreatedAt.Format(time.RFC3339Nano))
	if isUniqueErr(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: create key")
	}
	return k, nil
}

// ListMCPKeys returns the organization's keys, secrets omitted.
func (s *Store) ListMCPKeys(ctx context.Context, orgID string) ([]*MCPKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organization_id, name, created_at FROM mcp_key WHERE organization_id = ? ORDER BY name`,
		orgID)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: list keys")
	}
	defer rows.Close() //nolint:errcheck

	out := []*MCPKey{}
	for rows.Next() {
		var k MCPKey
		var created string
		if err := rows.Scan(&k.ID, &k.OrganizationID, &k.Name, &created); err != nil {
			return nil, errors.Wrap(err, "catalog: list keys")
		}
		k.CreatedAt = parseTime(created)
		out = append(out, &k)
	}
	return out, errors.Wrap(rows.Err(), "catalog: list keys")
}

// DeleteMCPKey removes a key; its mappings cascade away.
func (s *Store) DeleteMCPKey(ctx context.Context, orgID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM mcp_key WHERE organization_id = ? AND id = ?`, orgID, id)
	if err != nil {
		return errors.Wrap(err, "catalog: delete key")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "catalog: delete key")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveSecret authenticates a presented secret, returning the key row with
// the secret blanked.
func (s *Store) ResolveSecret(ctx context.Context, secret string) (*MCPKey, error) {
	var k MCPKey
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, created_at FROM mcp_key WHERE secret = ?`, secret).
		Scan(&k.ID, &k.OrganizationID, &k.Name, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: resolve key")
	}
	k.CreatedAt = parseTime(created)
	return &k, nil
}

// AddMapping grants one action on one target to a key. The target must exist
// (in this organization, or a global wildcard row) and the action must be
// attachable to the target's type.
func (s *Store) AddMapping(ctx context.Context, orgID, keyID, targetID string, action permission.Action) (*Mapping, error) {
	var tt string
	err := s.db.QueryRowContext(ctx, `
		SELECT target_type FROM permission_target
		WHERE id = ? AND (organization_id = ? OR organization_id IS NULL)`,
		targetID, orgID).Scan(&tt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: add mapping")
	}
	if !permission.ActionAllowedOn(action, permission.TargetType(tt)) {
		return nil, errors.Wrapf(ErrActionMismatch, "action %s on %s target", action, tt)
	}

	var owner string
	if err := s.db.QueryRowContext(ctx,
		`SELECT organization_id FROM mcp_key WHERE id = ?`, keyID).Scan(&owner); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "catalog: add mapping")
	}
	if owner != orgID {
		return nil, ErrNotFound
	}

	m := &Mapping{ID: uuid.NewString(), MCPKeyID: keyID, TargetID: targetID, Action: action}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO permission_mapping (id, mcp_key_id, target_id, action_id) VALUES (?, ?, ?, ?)`,
		m.ID, m.MCPKeyID, m.TargetID, string(m.Action))
	if isUniqueErr(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: add mapping")
	}
	return m, nil
}

// DeleteMapping revokes one grant.
func (s *Store) DeleteMapping(ctx context.Context, orgID, mappingID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM permission_mapping
		WHERE id = ? AND mcp_key_id IN (SELECT id FROM mcp_key WHERE organization_id = ?)`,
		mappingID, orgID)
	if err != nil {
		return errors.Wrap(err, "catalog: delete mapping")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "catalog: delete mapping")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMappings returns a key's grants ordered by target then action.
func (s *Store) ListMappings(ctx context.Context, orgID, keyID string) ([]*Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.mcp_key_id, m.target_id, m.action_id
		FROM permission_mapping m JOIN mcp_key k ON k.id = m.mcp_key_id
		WHERE k.organization_id = ? AND m.mcp_key_id = ?
		ORDER BY m.target_id, m.action_id`, orgID, keyID)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: list mappings")
	}
	defer rows.Close() //nolint:errcheck

	out := []*Mapping{}
	for rows.Next() {
		var m Mapping
		var action string
		if err := rows.Scan(&m.ID, &m.MCPKeyID, &m.TargetID, &action); err != nil {
			return nil, errors.Wrap(err, "catalog: list mappings")
		}
		m.Action = permission.Action(action)
		out = append(out, &m)
	}
	return out, errors.Wrap(rows.Err(), "catalog: list mappings")
}

// LoadGrants returns the raw grants of one key for projection into a
// permission set.
func (s *Store) LoadGrants(ctx context.Context, keyID string) ([]permission.Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_id, target_id FROM permission_mapping WHERE mcp_key_id = ?`, keyID)
	if err != nil {
		return nil, errors.Wrap(err, "catalog: load grants")
	}
	defer rows.Close() //nolint:errcheck

	var out []permission.Grant
	for rows.Next() {
		var action, target string
		if err := rows.Scan(&action, &target); err != nil {
			return nil, errors.Wrap(err, "catalog: load grants")
		}
		out = append(out, permission.Grant{Action: permission.Action(action), Target: target})
	}
	return out, errors.Wrap(rows.Err(), "catalog: load grants")
}
