// Package catalog is the control-plane store: one SQLite file holding
// organizations, users, sessions, datastore rows with their schema snapshots,
// the permission vocabulary and targets, MCP keys and their grants, and the
// audit log. Datastore contents live elsewhere; the catalog only describes
// them.
package catalog

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/permission"
)

// Sentinel errors mapped to transport faults by the controllers.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("duplicate")
	ErrActionMismatch = errors.New("action not allowed on target type")
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS organization (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user (
	id               TEXT PRIMARY KEY,
	organization_id  TEXT NOT NULL REFERENCES organization(id) ON DELETE CASCADE,
	email            TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES user(id) ON DELETE CASCADE,
	created_at  TEXT NOT NULL,
	expires_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS datastore (
	id               TEXT PRIMARY KEY,
	organization_id  TEXT NOT NULL REFERENCES organization(id) ON DELETE CASCADE,
	name             TEXT NOT NULL,
	external_id      TEXT NOT NULL UNIQUE,
	schema_json      TEXT NOT NULL DEFAULT '{"tables":{}}',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	UNIQUE (organization_id, name)
);

CREATE TABLE IF NOT EXISTS permission_action (
	id  TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS permission_allowed_action_by_type (
	target_type  TEXT NOT NULL,
	action_id    TEXT NOT NULL REFERENCES permission_action(id),
	PRIMARY KEY (target_type, action_id)
);

CREATE TABLE IF NOT EXISTS permission_target (
	id               TEXT PRIMARY KEY,
	organization_id  TEXT REFERENCES organization(id) ON DELETE CASCADE,
	target_type      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mcp_key (
	id               TEXT PRIMARY KEY,
	organization_id  TEXT NOT NULL REFERENCES organization(id) ON DELETE CASCADE,
	name             TEXT NOT NULL,
	secret           TEXT NOT NULL UNIQUE,
	created_at       TEXT NOT NULL,
	UNIQUE (organization_id, name)
);

CREATE TABLE IF NOT EXISTS permission_mapping (
	id          TEXT PRIMARY KEY,
	mcp_key_id  TEXT NOT NULL REFERENCES mcp_key(id) ON DELETE CASCADE,
	target_id   TEXT NOT NULL REFERENCES permission_target(id)
	                 ON UPDATE CASCADE ON DELETE CASCADE,
	action_id   TEXT NOT NULL REFERENCES permission_action(id),
	UNIQUE (mcp_key_id, target_id, action_id)
);

CREATE TABLE IF NOT EXISTS log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id  TEXT,
	mcp_key_id       TEXT,
	kind             TEXT NOT NULL,
	message          TEXT NOT NULL,
	created_at       TEXT NOT NULL
);
`

// Store wraps the catalog database.
type Store struct {
	db    *sql.DB
	log   *zap.SugaredLogger
	logCh chan LogEntry
	done  chan struct{}
}

// Open opens (creating if needed) the catalog file, applies the schema, seeds
// the permission vocabulary and the global wildcard targets, and starts the
// async log writer.
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	db, err := sql.Open("sqlite", datastore.DSN(path))
	if err != nil {
		return nil, errors.Wrap(err, "catalog: open")
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close() //nolint:errcheck
		return nil, errors.Wrap(err, "catalog: migrate")
	}

	s := &Store{
		db:    db,
		log:   log,
		logCh: make(chan LogEntry, 256),
		done:  make(chan struct{}),
	}
	if err := s.seed(context.Background()); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	go s.writeLogs()
	return s, nil
}

// seed inserts the closed action vocabulary, the per-type action constraint,
// and the three global wildcard targets. Idempotent.
func (s *Store) seed(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "catalog: seed")
	}
	defer tx.Rollback() //nolint:errcheck

	for tt, actions := range permission.AllowedActionsByType {
		for _, a := range actions {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO permission_action (id) VALUES (?)`, string(a)); err != nil {
				return errors.Wrap(err, "catalog: seed actions")
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO permission_allowed_action_by_type (target_type, action_id) VALUES (?, ?)`,
				string(tt), string(a)); err != nil {
				return errors.Wrap(err, "catalog: seed action constraint")
			}
		}
	}

	globals := []struct {
		id string
		tt permission.TargetType
	}{
		{permission.DatastoreTargetID(permission.Wildcard), permission.TypeDatastore},
		{permission.TableTargetID(permission.Wildcard, permission.Wildcard), permission.TypeTable},
		{permission.ColumnTargetID(permission.Wildcard, permission.Wildcard, permission.Wildcard), permission.TypeColumn},
	}
	for _, g := range globals {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO permission_target (id, organization_id, target_type) VALUES (?, NULL, ?)`,
			g.id, string(g.tt)); err != nil {
			return errors.Wrap(err, "catalog: seed wildcard targets")
		}
	}
	return errors.Wrap(tx.Commit(), "catalog: seed")
}

// Ping verifies the catalog connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the log writer and closes the database.
func (s *Store) Close() error {
	close(s.logCh)
	<-s.done
	return s.db.Close()
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

func isUniqueErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func nowStr() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
