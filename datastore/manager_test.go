package datastore

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

func newTestManager() (*Manager, afero.Fs) {
	fs := afero.NewMemMapFs()
	pool := NewPool("datastores")
	return NewManager(fs, pool, zap.NewNop().Sugar()), fs
}

func TestCreateFileAndRollback(t *testing.T) {
	m, fs := newTestManager()
	ctx := context.Background()

	rb, ferr := m.CreateFile(ctx, "ds_abc")
	if ferr != nil {
		t.Fatalf("create: %v", ferr)
	}
	if !m.Exists("ds_abc") {
		t.Fatal("file not created")
	}
	if ok, _ := afero.DirExists(fs, "datastores"); !ok {
		t.Fatal("datastores dir not created")
	}

	if sub, ferr := rb(ctx); ferr != nil || len(sub) != 0 {
		t.Fatalf("rollback: sub=%v err=%v", sub, ferr)
	}
	if m.Exists("ds_abc") {
		t.Fatal("rollback did not delete the file")
	}
}

func TestDropFile(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	if _, ferr := m.CreateFile(ctx, "ds_drop"); ferr != nil {
		t.Fatalf("create: %v", ferr)
	}
	if ferr := m.DropFile(ctx, "ds_drop"); ferr != nil {
		t.Fatalf("drop: %v", ferr)
	}
	if m.Exists("ds_drop") {
		t.Fatal("file still present after drop")
	}
}

func TestDropMissingFileIsEngineError(t *testing.T) {
	m, _ := newTestManager()

	ferr := m.DropFile(context.Background(), "nope")
	if ferr == nil {
		t.Fatal("expected error")
	}
	if ferr.Status != 500 || !ferr.ShouldLog {
		t.Errorf("status=%d shouldLog=%v", ferr.Status, ferr.ShouldLog)
	}
}
