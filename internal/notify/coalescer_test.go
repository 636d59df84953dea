package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/remote"
	"github.com/theirongolddev/finsync/internal/syncer"
)

type countingFetcher struct {
	mu     sync.Mutex
	tables map[string]int
	total  atomic.Int32
}

func (f *countingFetcher) Fetch(ctx context.Context, table string, q remote.Query) ([]byte, error) {
	f.mu.Lock()
	if f.tables == nil {
		f.tables = make(map[string]int)
	}
	f.tables[table]++
	f.mu.Unlock()
	f.total.Add(1)
	return []byte("[]"), nil
}

func (f *countingFetcher) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[table]
}

func newEngine(f syncer.Fetcher) *syncer.Engine {
	return syncer.New(cache.New(), f, syncer.Options{})
}

func change(t *testing.T, table string, ev model.EventType, row any) model.Change {
	t.Helper()
	raw, err := json.Marshal(row)
	if err != nil {
		t.Fatal(err)
	}
	ch := model.Change{Table: table, EventType: ev}
	if ev == model.EventDelete {
		ch.Old = raw
	} else {
		ch.New = raw
	}
	return ch
}

func entry(id string) model.LedgerEntry {
	return model.LedgerEntry{Meta: model.Meta{ID: id, UserID: "u1"}}
}

func TestBurstCollapsesToOneSync(t *testing.T) {
	f := &countingFetcher{}
	e := newEngine(f)
	defer e.Close()
	c := New(e, "u1", 50*time.Millisecond, nil)

	for i := 0; i < 10; i++ {
		c.Handle(change(t, "ledger_entries", model.EventInsert, entry("e")))
		time.Sleep(5 * time.Millisecond)
	}
	if f.total.Load() != 0 {
		t.Fatal("sync ran before the debounce window closed")
	}

	time.Sleep(200 * time.Millisecond)
	if n := f.count("ledger_entries"); n != 1 {
		t.Fatalf("ledger syncs = %d, want 1", n)
	}
	if st := c.Stats(); st.Debounced != 10 || st.Received != 10 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestDirectKindsPatchWithoutFetch(t *testing.T) {
	f := &countingFetcher{}
	e := newEngine(f)
	defer e.Close()
	c := New(e, "u1", 20*time.Millisecond, nil)

	acct := model.Account{Meta: model.Meta{ID: "a1", UserID: "u1"}, Name: "Wallet"}
	c.Handle(change(t, "accounts", model.EventInsert, acct))
	if n := e.Cache().Count(model.KindAccounts); n != 1 {
		t.Fatalf("accounts = %d, want 1", n)
	}
	c.Handle(change(t, "accounts", model.EventDelete, acct))
	if n := e.Cache().Count(model.KindAccounts); n != 0 {
		t.Fatalf("accounts = %d after delete, want 0", n)
	}

	time.Sleep(60 * time.Millisecond)
	if f.total.Load() != 0 {
		t.Fatal("direct kind should not trigger a fetch")
	}
	if st := c.Stats(); st.Patched != 2 {
		t.Fatalf("patched = %d, want 2", st.Patched)
	}
}

func TestForeignChangesDropped(t *testing.T) {
	e := newEngine(&countingFetcher{})
	defer e.Close()
	c := New(e, "u1", 0, nil)

	other := model.Account{Meta: model.Meta{ID: "a9", UserID: "u2"}}
	c.Handle(change(t, "accounts", model.EventInsert, other))
	if n := e.Cache().Count(model.KindAccounts); n != 0 {
		t.Fatal("change for another principal was applied")
	}
	if st := c.Stats(); st.Foreign != 1 {
		t.Fatalf("foreign = %d, want 1", st.Foreign)
	}
}

func keyOnlyDelete(table, id string) model.Change {
	return model.Change{
		Table:     table,
		EventType: model.EventDelete,
		Old:       json.RawMessage(`{"id":"` + id + `"}`),
	}
}

func TestKeyOnlyDeleteIsApplied(t *testing.T) {
	e := newEngine(&countingFetcher{})
	defer e.Close()
	c := New(e, "u1", 0, nil)

	c.Handle(change(t, "accounts", model.EventInsert, model.Account{Meta: model.Meta{ID: "a1", UserID: "u1"}}))
	c.Handle(keyOnlyDelete("accounts", "a1"))
	if n := e.Cache().Count(model.KindAccounts); n != 0 {
		t.Fatalf("accounts after key-only delete = %d, want 0", n)
	}
	if st := c.Stats(); st.Foreign != 0 || st.Patched != 2 {
		t.Fatalf("stats = %+v, want 0 foreign and 2 patched", st)
	}
}

func TestKeyOnlySettingDeleteResolvesKey(t *testing.T) {
	e := newEngine(&countingFetcher{})
	defer e.Close()
	c := New(e, "u1", 0, nil)

	set := model.Setting{Meta: model.Meta{ID: "s1", UserID: "u1"}, Key: model.SettingBaseCurrency, Value: "EUR"}
	c.Handle(change(t, "settings", model.EventInsert, set))
	c.Handle(keyOnlyDelete("settings", "s1"))
	if n := e.Cache().Count(model.KindSettings); n != 0 {
		t.Fatalf("settings after key-only delete = %d, want 0", n)
	}
}

func TestKeyOnlyDeleteOfForeignRowDropped(t *testing.T) {
	e := newEngine(&countingFetcher{})
	defer e.Close()
	c := New(e, "u1", 0, nil)

	if _, err := cache.Put(e.Cache(), model.KindAccounts, model.Account{Meta: model.Meta{ID: "a9", UserID: "u2"}}); err != nil {
		t.Fatal(err)
	}
	c.Handle(keyOnlyDelete("accounts", "a9"))
	if n := e.Cache().Count(model.KindAccounts); n != 1 {
		t.Fatalf("accounts = %d, want the foreign row kept", n)
	}
	if st := c.Stats(); st.Foreign != 1 {
		t.Fatalf("foreign = %d, want 1", st.Foreign)
	}
}

func TestKeyOnlyLedgerDeleteRequestsSync(t *testing.T) {
	f := &countingFetcher{}
	e := newEngine(f)
	defer e.Close()
	c := New(e, "u1", 20*time.Millisecond, nil)

	c.Handle(keyOnlyDelete("ledger_entries", "e1"))
	deadline := time.Now().Add(time.Second)
	for f.count("ledger_entries") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := f.count("ledger_entries"); n != 1 {
		t.Fatalf("ledger syncs = %d, want 1", n)
	}
	if st := c.Stats(); st.Foreign != 0 || st.Debounced != 1 {
		t.Fatalf("stats = %+v, want the delete debounced", st)
	}
}

func TestUnknownTablesCounted(t *testing.T) {
	e := newEngine(&countingFetcher{})
	defer e.Close()
	c := New(e, "u1", 0, nil)

	c.Handle(change(t, "audit_log", model.EventInsert, map[string]string{"user_id": "u1"}))
	if st := c.Stats(); st.Unknown != 1 {
		t.Fatalf("unknown = %d, want 1", st.Unknown)
	}
}

type fakeEngine struct {
	reg *syncer.Registry

	mu       sync.Mutex
	requests []model.Kind
}

func (f *fakeEngine) Registry() *syncer.Registry { return f.reg }

func (f *fakeEngine) ApplyPatch(ch model.Change) (model.Kind, cache.MergeStats, error) {
	return "", cache.MergeStats{}, errors.New("decode failed")
}

func (f *fakeEngine) Owner(ch model.Change) string { return ch.Owner() }

func (f *fakeEngine) Request(kind model.Kind, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, kind)
}

func TestFailedPatchFallsBackToSync(t *testing.T) {
	fe := &fakeEngine{reg: syncer.NewRegistry()}
	c := New(fe, "", 0, nil)

	c.Handle(change(t, "budgets", model.EventUpdate, map[string]string{"id": "b1"}))
	if len(fe.requests) != 1 || fe.requests[0] != model.KindBudgets {
		t.Fatalf("requests = %v, want [budgets]", fe.requests)
	}
	if st := c.Stats(); st.Failed != 1 {
		t.Fatalf("failed = %d, want 1", st.Failed)
	}
}

func TestRunConsumesUntilChannelsClose(t *testing.T) {
	fe := &fakeEngine{reg: syncer.NewRegistry()}
	c := New(fe, "", 0, nil)

	changes := make(chan model.Change, 2)
	errs := make(chan error, 1)
	changes <- change(t, "ledger_entries", model.EventInsert, entry("e1"))
	errs <- errors.New("socket closed")
	close(changes)
	close(errs)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), changes, errs)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channels closed")
	}
	st := c.Stats()
	if st.Debounced != 1 || st.Errors != 1 {
		t.Fatalf("stats = %+v", st)
	}
}
