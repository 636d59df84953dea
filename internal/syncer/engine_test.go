package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/remote"
)

type fetchCall struct {
	table string
	q     remote.Query
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	rows  map[string]any
	err   error
	gate  chan struct{}
	count atomic.Int32
}

func newFake() *fakeFetcher {
	return &fakeFetcher{rows: make(map[string]any)}
}

func (f *fakeFetcher) set(table string, rows any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[table] = rows
}

func (f *fakeFetcher) Fetch(ctx context.Context, table string, q remote.Query) ([]byte, error) {
	f.count.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{table: table, q: q})
	if f.err != nil {
		return nil, f.err
	}
	rows, ok := f.rows[table]
	if !ok {
		return []byte("[]"), nil
	}
	return json.Marshal(rows)
}

func (f *fakeFetcher) lastCall(t *testing.T) fetchCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no fetch calls recorded")
	}
	return f.calls[len(f.calls)-1]
}

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func acct(id, name string, updated time.Time) model.Account {
	return model.Account{
		Meta:           model.Meta{ID: id, CreatedAt: t0, UpdatedAt: updated},
		Name:           name,
		OpeningBalance: decimal.NewFromInt(100),
		Currency:       "EUR",
		Status:         model.AccountActive,
	}
}

func newTestEngine(f Fetcher) *Engine {
	e := New(cache.New(), f, Options{GuardWindow: 80 * time.Millisecond})
	clock := t0
	e.now = func() time.Time { return clock }
	return e
}

func TestFirstSyncIsFullThenIncremental(t *testing.T) {
	f := newFake()
	f.set("accounts", []model.Account{acct("a1", "Wallet", t0), acct("a2", "Bank", t0)})
	e := newTestEngine(f)
	defer e.Close()
	ctx := context.Background()

	res, err := e.Sync(ctx, model.KindAccounts, nil, false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Incremental {
		t.Fatal("first sync should be full")
	}
	if f.lastCall(t).q.Since != nil {
		t.Fatal("full fetch must not send since")
	}
	if cur, ok := e.Cursors().Get("accounts"); !ok || !cur.Equal(t0) {
		t.Fatalf("cursor = %v, %v; want fetch start %v", cur, ok, t0)
	}

	// Delta only carries a2; a1 must survive.
	later := t0.Add(time.Minute)
	e.now = func() time.Time { return later }
	f.set("accounts", []model.Account{acct("a2", "Bank renamed", later)})

	res, err = e.Sync(ctx, model.KindAccounts, nil, false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !res.Incremental {
		t.Fatal("second sync should be incremental")
	}
	if since := f.lastCall(t).q.Since; since == nil || !since.Equal(t0) {
		t.Fatalf("since = %v, want %v", since, t0)
	}
	accs := e.Cache().Snapshot().Accounts
	if len(accs) != 2 || accs[1].Name != "Bank renamed" {
		t.Fatalf("accounts = %+v", accs)
	}
	if cur, _ := e.Cursors().Get("accounts"); !cur.Equal(later) {
		t.Fatalf("cursor = %v, want %v", cur, later)
	}
}

func TestForceFullReplaces(t *testing.T) {
	f := newFake()
	f.set("accounts", []model.Account{acct("a1", "Wallet", t0), acct("a2", "Bank", t0)})
	e := newTestEngine(f)
	defer e.Close()
	ctx := context.Background()

	if _, err := e.Sync(ctx, model.KindAccounts, nil, false); err != nil {
		t.Fatal(err)
	}
	f.set("accounts", []model.Account{acct("a2", "Bank", t0)})
	res, err := e.Sync(ctx, model.KindAccounts, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Incremental || f.lastCall(t).q.Since != nil {
		t.Fatal("forced sync must be full")
	}
	if n := e.Cache().Count(model.KindAccounts); n != 1 {
		t.Fatalf("accounts = %d, want 1 after replace", n)
	}
}

func TestFetchErrorLeavesStateUntouched(t *testing.T) {
	f := newFake()
	f.set("accounts", []model.Account{acct("a1", "Wallet", t0)})
	e := newTestEngine(f)
	defer e.Close()
	ctx := context.Background()

	if _, err := e.Sync(ctx, model.KindAccounts, nil, false); err != nil {
		t.Fatal(err)
	}
	version := e.Cache().Version()

	e.now = func() time.Time { return t0.Add(time.Hour) }
	f.err = errors.New("connection reset")
	_, err := e.Sync(ctx, model.KindAccounts, nil, true)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if !fe.Full || fe.Kind != model.KindAccounts {
		t.Fatalf("FetchError = %+v", fe)
	}
	if e.Cache().Version() != version {
		t.Fatal("cache changed after failed fetch")
	}
	if cur, _ := e.Cursors().Get("accounts"); !cur.Equal(t0) {
		t.Fatalf("cursor moved to %v after failure", cur)
	}
	if st := statusOf(e, model.KindAccounts); st.LastError == "" {
		t.Fatal("status should report the last error")
	}
}

func statusOf(e *Engine, kind model.Kind) KindStatus {
	for _, st := range e.Status() {
		if st.Kind == kind {
			return st
		}
	}
	return KindStatus{}
}

func TestCursorAdvanceIsMonotonic(t *testing.T) {
	s := NewCursorStore()
	if !s.Advance("k", t0) {
		t.Fatal("first advance rejected")
	}
	if s.Advance("k", t0.Add(-time.Second)) {
		t.Fatal("regressing advance accepted")
	}
	if cur, _ := s.Get("k"); !cur.Equal(t0) {
		t.Fatalf("cursor = %v, want %v", cur, t0)
	}
	if !s.Advance("k", t0) {
		t.Fatal("equal timestamp should be accepted")
	}
}

func TestGuardDefersSync(t *testing.T) {
	f := newFake()
	f.set("ledger_entries", []model.LedgerEntry{})
	e := New(cache.New(), f, Options{GuardWindow: 80 * time.Millisecond})
	defer e.Close()

	e.MarkMutated(model.KindLedgerEntries)
	marked := time.Now()

	res, err := e.Sync(context.Background(), model.KindLedgerEntries, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Deferred || res.RetryIn <= 0 || res.RetryIn > 80*time.Millisecond {
		t.Fatalf("result = %+v, want deferred within window", res)
	}
	if f.count.Load() != 0 {
		t.Fatal("fetch ran inside guard window")
	}
	if _, ok := e.Pending(model.KindLedgerEntries); !ok {
		t.Fatal("deferred sync not scheduled")
	}

	deadline := time.Now().Add(time.Second)
	for f.count.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.count.Load() != 1 {
		t.Fatalf("deferred sync ran %d times, want 1", f.count.Load())
	}
	if elapsed := time.Since(marked); elapsed < 80*time.Millisecond {
		t.Fatalf("deferred sync fired after %v, before the guard window", elapsed)
	}
}

func TestGuardWindowExpires(t *testing.T) {
	g := NewGuard(2 * time.Second)
	now := t0
	g.now = func() time.Time { return now }

	g.MarkMutated(model.KindAccounts)
	now = t0.Add(1500 * time.Millisecond)
	if !g.WithinGuard(model.KindAccounts) {
		t.Fatal("should be guarded at +1.5s")
	}
	if left := g.Remaining(model.KindAccounts); left != 500*time.Millisecond {
		t.Fatalf("Remaining = %v, want 500ms", left)
	}
	now = t0.Add(2 * time.Second)
	if g.WithinGuard(model.KindAccounts) {
		t.Fatal("guard should expire at exactly one window")
	}
	if g.WithinGuard(model.KindBudgets) {
		t.Fatal("unmarked kind must not be guarded")
	}
}

func TestConcurrentSyncsShareOneFetch(t *testing.T) {
	f := newFake()
	f.gate = make(chan struct{})
	f.set("accounts", []model.Account{acct("a1", "Wallet", t0)})
	e := newTestEngine(f)
	defer e.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Sync(context.Background(), model.KindAccounts, nil, false); err != nil {
				t.Error(err)
			}
		}()
	}

	// Let every caller reach the in-flight request before releasing it.
	deadline := time.Now().Add(time.Second)
	for f.count.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if n := f.count.Load(); n != 1 {
		t.Fatalf("fetches = %d, want 1", n)
	}
}

func TestTransfersUseOwnCursorAndSlice(t *testing.T) {
	f := newFake()
	plain := model.LedgerEntry{Meta: model.Meta{ID: "e1", CreatedAt: t0, UpdatedAt: t0}, AccountID: "a1", Type: model.EntryExpense}
	out := model.LedgerEntry{Meta: model.Meta{ID: "e2", CreatedAt: t0, UpdatedAt: t0}, AccountID: "a1", Type: model.EntryTransferOut, TransferID: "t1"}
	in := model.LedgerEntry{Meta: model.Meta{ID: "e3", CreatedAt: t0, UpdatedAt: t0}, AccountID: "a2", Type: model.EntryTransferIn, TransferID: "t1"}
	f.set("ledger_entries", []model.LedgerEntry{plain, out, in})
	e := newTestEngine(f)
	defer e.Close()
	ctx := context.Background()

	if _, err := e.Sync(ctx, model.KindLedgerEntries, nil, false); err != nil {
		t.Fatal(err)
	}

	// The transfers fetch only returns the surviving pair.
	f.set("ledger_entries", []model.LedgerEntry{out})
	if _, err := e.Sync(ctx, model.KindTransfers, nil, true); err != nil {
		t.Fatal(err)
	}
	call := f.lastCall(t)
	if call.table != "ledger_entries" || call.q.Filters.Signature() != "transfer_id.not.is.null" {
		t.Fatalf("transfers fetch = %+v", call)
	}
	if _, ok := e.Cursors().Get("transfers?transfer_id.not.is.null"); !ok {
		t.Fatal("transfers cursor not recorded under its filter key")
	}

	snap := e.Cache().Snapshot()
	if len(snap.Entries) != 2 {
		t.Fatalf("entries = %+v, want plain + e2", snap.Entries)
	}
	if snap.Entries[0].ID != "e1" {
		t.Fatalf("non-transfer entry lost: %+v", snap.Entries)
	}
}

func TestApplyPatch(t *testing.T) {
	e := newTestEngine(newFake())
	defer e.Close()

	row, _ := json.Marshal(acct("a1", "Wallet", t0))
	kind, st, err := e.ApplyPatch(model.Change{Table: "accounts", EventType: model.EventInsert, New: row})
	if err != nil || kind != model.KindAccounts || st.Inserted != 1 {
		t.Fatalf("insert: kind=%s st=%+v err=%v", kind, st, err)
	}

	row, _ = json.Marshal(acct("a1", "Savings", t0.Add(time.Second)))
	if _, _, err := e.ApplyPatch(model.Change{Table: "accounts", EventType: model.EventUpdate, New: row}); err != nil {
		t.Fatal(err)
	}
	if accs := e.Cache().Snapshot().Accounts; accs[0].Name != "Savings" {
		t.Fatalf("update not applied: %+v", accs)
	}

	old, _ := json.Marshal(model.Account{Meta: model.Meta{ID: "a1"}})
	if _, _, err := e.ApplyPatch(model.Change{Table: "accounts", EventType: model.EventDelete, Old: old}); err != nil {
		t.Fatal(err)
	}
	if n := e.Cache().Count(model.KindAccounts); n != 0 {
		t.Fatalf("accounts = %d after delete", n)
	}

	if _, _, err := e.ApplyPatch(model.Change{Table: "nope"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestKeyOnlyDeleteResolvesByID(t *testing.T) {
	e := newTestEngine(newFake())
	defer e.Close()

	set := model.Setting{Meta: model.Meta{ID: "s1", UserID: "u1"}, Key: model.SettingBaseCurrency, Value: "EUR"}
	raw, err := json.Marshal(set)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.ApplyPatch(model.Change{Table: "settings", EventType: model.EventInsert, New: raw}); err != nil {
		t.Fatal(err)
	}

	keyOnly := model.Change{Table: "settings", EventType: model.EventDelete, Old: json.RawMessage(`{"id":"s1"}`)}
	if got := e.Owner(keyOnly); got != "u1" {
		t.Fatalf("Owner = %q, want u1 from the cached row", got)
	}
	_, st, err := e.ApplyPatch(keyOnly)
	if err != nil {
		t.Fatal(err)
	}
	if st.Removed != 1 || e.Cache().Count(model.KindSettings) != 0 {
		t.Fatalf("stats = %+v, settings = %d; want the row removed", st, e.Cache().Count(model.KindSettings))
	}
	if got := e.Owner(keyOnly); got != "" {
		t.Fatalf("Owner after removal = %q, want unknown", got)
	}
}

func TestMutationDuringFetchDefersMerge(t *testing.T) {
	f := newFake()
	f.gate = make(chan struct{})
	f.set("accounts", []model.Account{acct("a1", "Stale", t0)})
	e := New(cache.New(), f, Options{GuardWindow: time.Second})
	defer e.Close()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.Sync(context.Background(), model.KindAccounts, nil, false)
		done <- outcome{res, err}
	}()

	deadline := time.Now().Add(time.Second)
	for f.count.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := cache.Put(e.Cache(), model.KindAccounts, acct("a1", "Fresh", t0.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}
	e.MarkMutated(model.KindAccounts)
	close(f.gate)

	out := <-done
	if out.err != nil {
		t.Fatal(out.err)
	}
	if !out.res.Deferred {
		t.Fatalf("result = %+v, want deferred", out.res)
	}
	got, _, _ := cache.Lookup[model.Account](e.Cache(), model.KindAccounts, "a1")
	if got.Name != "Fresh" {
		t.Fatalf("name = %q, want the local write kept", got.Name)
	}
	if _, ok := e.Pending(model.KindAccounts); !ok {
		t.Fatal("deferred sync not rescheduled")
	}
}

func TestRequestSupersedesPending(t *testing.T) {
	f := newFake()
	e := New(cache.New(), f, Options{})
	defer e.Close()

	e.Request(model.KindAccounts, 40*time.Millisecond)
	e.Request(model.KindAccounts, 40*time.Millisecond)
	e.Request(model.KindAccounts, 40*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	if n := f.count.Load(); n != 1 {
		t.Fatalf("fetches = %d, want 1", n)
	}
}

func TestSyncAllReportsPartialFailure(t *testing.T) {
	f := newFake()
	f.set("accounts", []model.Account{acct("a1", "Wallet", t0)})
	e := newTestEngine(f)
	defer e.Close()

	results, err := e.SyncAll(context.Background(), []model.Kind{model.KindAccounts, "bogus"}, false)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind joined", err)
	}
	if _, ok := results[model.KindAccounts]; !ok {
		t.Fatal("successful kind missing from results")
	}
}

func TestCursorKeyDependsOnFilters(t *testing.T) {
	a := CursorKey(model.KindLedgerEntries, nil)
	b := CursorKey(model.KindLedgerEntries, remote.Filters{{Column: "account_id", Op: remote.OpEq, Value: "a1"}})
	if a == b {
		t.Fatal("filtered and unfiltered fetches must not share a cursor")
	}
}

func TestMatchesFilters(t *testing.T) {
	leg := model.LedgerEntry{AccountID: "a1", TransferID: "t1"}
	plain := model.LedgerEntry{AccountID: "a2"}
	notNull := remote.Filters{{Column: "transfer_id", Op: remote.OpNotIs, Value: "null"}}
	if !matches(leg, notNull) || matches(plain, notNull) {
		t.Fatal("not.is.null filter mismatch")
	}
	byAccount := remote.Filters{{Column: "account_id", Op: remote.OpEq, Value: "a2"}}
	if matches(leg, byAccount) || !matches(plain, byAccount) {
		t.Fatal("eq filter mismatch")
	}
}
