package datastore

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// pragmas applied to every datastore file on first open. The catalog store
// uses the same set.
var pragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"cache_size(-10000)",
	"temp_store(2)",
	"mmap_size(268435456)",
}

// DSN builds the connection string for an SQLite file at path with the
// standard pragma set.
func DSN(path string) string {
	s := "file:" + path
	sep := "?"
	for _, p := range pragmas {
		s += sep + "_pragma=" + p
		sep = "&"
	}
	return s
}

// Pool is the process-wide connection pool keyed by datastore file name.
// The first Open creates the connection; later Opens return the cached one;
// Release closes the handle and removes the entry. The engine serializes
// writers via WAL mode and the busy timeout, so one *sql.DB per file is
// enough.
type Pool struct {
	mu    sync.Mutex
	dir   string
	conns map[string]*sql.DB
}

// NewPool creates a pool serving files under dir.
func NewPool(dir string) *Pool {
	return &Pool{dir: dir, conns: map[string]*sql.DB{}}
}

// Dir returns the datastores directory the pool serves.
func (p *Pool) Dir() string { return p.dir }

// Path returns the on-disk path for a datastore file name.
func (p *Pool) Path(name string) string { return filepath.Join(p.dir, name) }

// Open returns the pooled connection for name, creating it on first use.
func (p *Pool) Open(name string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.conns[name]; ok {
		return db, nil
	}

	db, err := sql.Open("sqlite", DSN(p.Path(name)))
	if err != nil {
		return nil, errors.Wrapf(err, "open datastore %s", name)
	}
	p.conns[name] = db
	return db, nil
}

// Release closes the connection for name and removes the pool entry. It is a
// no-op when name is not pooled. This replaces the source system's
// monkey-patched close: closing and unmapping happen in one place.
func (p *Pool) Release(name string) error {
	p.mu.Lock()
	db, ok := p.conns[name]
	delete(p.conns, name)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("release datastore %s: %w", name, err)
	}
	return nil
}

// CloseAll closes every pooled connection. Called on shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = map[string]*sql.DB{}
	p.mu.Unlock()

	for _, db := range conns {
		db.Close() //nolint:errcheck
	}
}

// Len returns the number of pooled connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
