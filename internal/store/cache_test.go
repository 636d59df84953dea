package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSaveLoadState(t *testing.T) {
	db := openTemp(t)
	ts := time.Date(2025, 6, 1, 10, 0, 0, 123456789, time.UTC)

	in := cache.State{
		Collections: map[model.Kind][]byte{
			model.KindAccounts: []byte(`[{"id":"a1"}]`),
			model.KindSettings: []byte(`[]`),
		},
		Cursors: map[string]time.Time{"accounts": ts},
	}
	if err := db.SaveState(in); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	out, err := db.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if string(out.Collections[model.KindAccounts]) != `[{"id":"a1"}]` {
		t.Errorf("accounts blob = %s", out.Collections[model.KindAccounts])
	}
	if !out.Cursors["accounts"].Equal(ts) {
		t.Errorf("cursor = %v, want %v", out.Cursors["accounts"], ts)
	}
}

func TestSaveStateReplacesCursors(t *testing.T) {
	db := openTemp(t)
	now := time.Now().UTC()

	if err := db.SaveState(cache.State{Cursors: map[string]time.Time{"a": now, "b": now}}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveState(cache.State{Cursors: map[string]time.Time{"a": now}}); err != nil {
		t.Fatal(err)
	}

	out, err := db.LoadState()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Cursors["b"]; ok {
		t.Fatal("cursor b should have been replaced away")
	}
	if len(out.Cursors) != 1 {
		t.Fatalf("cursor count = %d, want 1", len(out.Cursors))
	}
}

func TestCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	c := cache.New()
	if _, err := cache.Put(c, model.KindAccounts, model.Account{Meta: model.Meta{ID: "a1"}, Name: "Wallet"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Flush(db, nil); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db2.Close() }()

	restored := cache.New()
	if _, err := restored.Hydrate(db2); err != nil {
		t.Fatal(err)
	}
	accs := restored.Snapshot().Accounts
	if len(accs) != 1 || accs[0].Name != "Wallet" {
		t.Fatalf("accounts after reopen = %+v", accs)
	}
}
