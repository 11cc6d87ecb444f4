package datastore

import (
	"strings"
	"testing"
)

func TestDSNCarriesPragmas(t *testing.T) {
	dsn := DSN("datastores/abc123")
	if !strings.HasPrefix(dsn, "file:datastores/abc123?") {
		t.Fatalf("dsn = %q", dsn)
	}
	for _, p := range []string{
		"_pragma=foreign_keys(1)",
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(5000)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=cache_size(-10000)",
		"_pragma=temp_store(2)",
		"_pragma=mmap_size(268435456)",
	} {
		if !strings.Contains(dsn, p) {
			t.Errorf("dsn missing %s", p)
		}
	}
}

func TestPoolCachesAndReleases(t *testing.T) {
	p := NewPool(t.TempDir())

	db1, err := p.Open("ds1")
	if err != nil {
		t.Fatal(err)
	}
	db2, err := p.Open("ds1")
	if err != nil {
		t.Fatal(err)
	}
	if db1 != db2 {
		t.Error("second open did not return the cached connection")
	}
	if p.Len() != 1 {
		t.Errorf("pool len = %d", p.Len())
	}

	if err := p.Release("ds1"); err != nil {
		t.Fatal(err)
	}
	if p.Len() != 0 {
		t.Errorf("pool len after release = %d", p.Len())
	}

	// Releasing an unknown name is a no-op.
	if err := p.Release("ds1"); err != nil {
		t.Fatal(err)
	}

	db3, err := p.Open("ds1")
	if err != nil {
		t.Fatal(err)
	}
	if db3 == db1 {
		t.Error("open after release returned the closed handle")
	}
	p.CloseAll()
}

func TestPoolIndependentDatastores(t *testing.T) {
	p := NewPool(t.TempDir())
	defer p.CloseAll()

	a, err := p.Open("a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Open("b")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("distinct datastores share a connection")
	}
	if p.Len() != 2 {
		t.Errorf("pool len = %d", p.Len())
	}
}

func TestValidIdent(t *testing.T) {
	for _, ok := range []string{"users", "_tmp", "a1", "snake_case"} {
		if !ValidIdent(ok) {
			t.Errorf("%q rejected", ok)
		}
	}
	for _, bad := range []string{"", "1abc", "users; DROP TABLE x", "a-b", `a"b`} {
		if ValidIdent(bad) {
			t.Errorf("%q accepted", bad)
		}
	}
}
