package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Organization is one tenant. Every datastore, key, and target belongs to
// exactly one.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User belongs to one organization.
type User struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is one authenticated browser session.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateOrganization inserts a new tenant.
func (s *Store) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	org := &Organization{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organization (id, name, created_at) VALUES (?, ?, ?)`,
		org.ID, org.Name, org.CreatedAt.Format(time.RFC3339Nano))
	if isUniqueErr(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: create organization")
	}
	return org, nil
}

// GetOrganization looks a tenant up by id.
func (s *Store) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var org Organization
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organization WHERE id = ?`, id).
		Scan(&org.ID, &org.Name, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: get organization")
	}
	org.CreatedAt = parseTime(created)
	return &org, nil
}

// GetOrganizationByName looks a tenant up by its unique name.
func (s *Store) GetOrganizationByName(ctx context.Context, name string) (*Organization, error) {
	var org Organization
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM organization WHERE name = ?`, name).
		Scan(&org.ID, &org.Name, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: get organization")
	}
	org.CreatedAt = parseTime(created)
	return &org, nil
}

// CreateUser inserts a user under an organization.
func (s *Store) CreateUser(ctx context.Context, orgID, email, name string) (*User, error) {
	u := &User{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Email:          email,
		Name:           name,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user (id, organization_id, email, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.OrganizationID, u.Email, u.Name, u.CreatedAt.Format(time.RFC3339Nano))
	if isUniqueErr(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: create user")
	}
	return u, nil
}

// CreateSession opens a session for a user with the given lifetime.
func (s *Store) CreateSession(ctx context.Context, userID string, ttl time.Duration) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID,
		sess.CreatedAt.Format(time.RFC3339Nano), sess.ExpiresAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, errors.Wrap(err, "catalog: create session")
	}
	return sess, nil
}

// ResolveSession returns the organization a live session belongs to. Expired
// or unknown sessions resolve to ErrNotFound.
func (s *Store) ResolveSession(ctx context.Context, sessionID string) (*Organization, error) {
	var orgID, expires string
	err := s.db.QueryRowContext(ctx, `
		SELECT u.organization_id, se.expires_at
		FROM session se JOIN user u ON u.id = se.user_id
		WHERE se.id = ?`, sessionID).
		Scan(&orgID, &expires)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "catalog: resolve session")
	}
	if parseTime(expires).Before(time.Now().UTC()) {
		return nil, ErrNotFound
	}
	return s.GetOrganization(ctx, orgID)
}
