package datastore

import (
	"context"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/eclipticdb/ecliptic/fault"
)

// Manager owns the datastores directory and the file lifecycle. The afero
// filesystem keeps create/drop and their rollbacks testable in memory; pooled
// connections always go through the OS filesystem, so tests that exercise the
// Manager on a MemMapFs must not open connections.
type Manager struct {
	fs   afero.Fs
	pool *Pool
	log  *zap.SugaredLogger
}

// NewManager creates a manager over fs for the pool's directory.
func NewManager(fs afero.Fs, pool *Pool, log *zap.SugaredLogger) *Manager {
	return &Manager{fs: fs, pool: pool, log: log}
}

// Pool returns the connection pool the manager tracks.
func (m *Manager) Pool() *Pool { return m.pool }

// Exists reports whether the datastore file name is present on disk.
func (m *Manager) Exists(name string) bool {
	_, err := m.fs.Stat(m.pool.Path(name))
	return err == nil
}

// CreateFile ensures the datastores directory exists and creates an empty
// file for name. The returned rollback releases any pooled connection and
// deletes the file again.
func (m *Manager) CreateFile(ctx context.Context, name string) (fault.Rollback, *fault.Entry) {
	if err := m.fs.MkdirAll(m.pool.Dir(), os.ModePerm); err != nil {
		return nil, fault.Internal("datastore.dir.create", err)
	}

	path := m.pool.Path(name)
	f, err := m.fs.Create(path)
	if err != nil {
		return nil, fault.Internal("datastore.file.create", err)
	}
	if err := f.Close(); err != nil {
		return nil, fault.Internal("datastore.file.create", err)
	}

	rb := func(ctx context.Context) ([]fault.Rollback, *fault.Entry) {
		if err := m.pool.Release(name); err != nil {
			m.log.Warnf("rollback: release %s: %s", name, err)
		}
		if err := m.fs.Remove(path); err != nil {
			return nil, fault.Internal("datastore.file.create.rollback", err)
		}
		return nil, nil
	}
	return rb, nil
}

// DropFile releases the pooled connection and deletes the file. The drop is
// terminal: the caller must commit the catalog deletion before calling this,
// so a failed file delete leaves an orphan file, never a dangling catalog row.
func (m *Manager) DropFile(ctx context.Context, name string) *fault.Entry {
	if err := m.pool.Release(name); err != nil {
		m.log.Warnf("drop: release %s: %s", name, err)
	}
	if err := m.fs.Remove(m.pool.Path(name)); err != nil {
		return fault.Engine("datastore.file.drop", err)
	}
	// WAL sidecar files may or may not exist.
	m.fs.Remove(m.pool.Path(name) + "-wal") //nolint:errcheck
	m.fs.Remove(m.pool.Path(name) + "-shm") //nolint:errcheck
	return nil
}
