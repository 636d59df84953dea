package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/aggregate"
	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/refresh"
	"github.com/theirongolddev/finsync/internal/remote"
	"github.com/theirongolddev/finsync/internal/syncer"
)

type emptyFetcher struct{}

func (emptyFetcher) Fetch(ctx context.Context, table string, q remote.Query) ([]byte, error) {
	return []byte("[]"), nil
}

type memStore struct {
	saved *cache.State
}

func (m *memStore) LoadState() (cache.State, error) {
	if m.saved == nil {
		return cache.State{}, nil
	}
	return *m.saved, nil
}

func (m *memStore) SaveState(st cache.State) error {
	m.saved = &st
	return nil
}

func newTestService(t *testing.T) (*Service, *syncer.Engine) {
	t.Helper()
	c := cache.New()
	eng := syncer.New(c, emptyFetcher{}, syncer.Options{})
	t.Cleanup(eng.Close)

	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	if _, err := cache.Merge(c, model.KindAccounts, []model.Account{
		{Meta: model.Meta{ID: "a1"}, Name: "Wallet", OpeningBalance: d("100"), Currency: "USD", Status: model.AccountActive},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Merge(c, model.KindLedgerEntries, []model.LedgerEntry{
		{Meta: model.Meta{ID: "e1"}, AccountID: "a1", Amount: d("50"), Type: model.EntryIncome, Status: model.StatusCompleted},
		{Meta: model.Meta{ID: "e2"}, AccountID: "a1", Amount: d("30"), Type: model.EntryExpense, Status: model.StatusCompleted},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Merge(c, model.KindExchangeRates, []model.ExchangeRate{
		{Meta: model.Meta{ID: "x1"}, FromCurrency: "USD", ToCurrency: "EUR", Rate: d("0.9")},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Merge(c, model.KindCategories, []model.Category{
		{Meta: model.Meta{ID: "food"}, Name: "Food"},
	}); err != nil {
		t.Fatal(err)
	}

	s := New(Config{EventsBuffer: 50}, Deps{
		Engine:    eng,
		Views:     aggregate.NewViews(c, "USD"),
		Scheduler: refresh.New(eng, 0, nil),
		Store:     &memStore{},
	})
	return s, eng
}

func TestDiffSnapshots(t *testing.T) {
	prev := Snapshot{Counts: map[model.Kind]int{
		model.KindLedgerEntries: 10,
		model.KindAccounts:      2,
		model.KindBudgets:       1,
	}}
	curr := Snapshot{Counts: map[model.Kind]int{
		model.KindLedgerEntries: 12,
		model.KindAccounts:      2,
	}}

	delta := diffSnapshots(prev, curr)
	if delta[model.KindLedgerEntries] != 2 {
		t.Fatalf("ledger delta = %d, want 2", delta[model.KindLedgerEntries])
	}
	if _, ok := delta[model.KindAccounts]; ok {
		t.Fatal("unchanged kind reported in delta")
	}
	if delta[model.KindBudgets] != -1 {
		t.Fatalf("budgets delta = %d, want -1", delta[model.KindBudgets])
	}
	if delta.isZero() {
		t.Fatal("delta unexpectedly reported as zero")
	}
}

func TestPublishEventRingBuffer(t *testing.T) {
	s, _ := newTestService(t)
	s.cfg.EventsBuffer = 2

	s.publishEvent(Event{ID: 1})
	s.publishEvent(Event{ID: 2})
	s.publishEvent(Event{ID: 3})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}

func TestObserveEmitsDeltaOnChange(t *testing.T) {
	s, eng := newTestService(t)
	s.observe()

	if _, err := cache.Merge(eng.Cache(), model.KindAccounts, []model.Account{{Meta: model.Meta{ID: "a2"}, Currency: "USD"}}); err != nil {
		t.Fatal(err)
	}
	s.observe()
	s.observe()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) != 2 {
		t.Fatalf("events = %d, want snapshot + one delta", len(s.events))
	}
	ev := s.events[1]
	if ev.Type != EventChange || ev.Delta[model.KindAccounts] != 1 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestSyncResultsBecomeEvents(t *testing.T) {
	s, eng := newTestService(t)
	if _, err := eng.Sync(context.Background(), model.KindBudgets, nil, false); err != nil {
		t.Fatal(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 || s.events[len(s.events)-1].Type != EventSync {
		t.Fatalf("events = %+v", s.events)
	}
}

func TestFlushOnlyWhenChanged(t *testing.T) {
	s, _ := newTestService(t)
	st := s.deps.Store.(*memStore)

	s.flush()
	if st.saved == nil {
		t.Fatal("dirty cache was not flushed")
	}
	st.saved = nil
	s.flush()
	if st.saved != nil {
		t.Fatal("clean cache was flushed again")
	}
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code < 300 {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", path, err)
		}
	}
	return rec.Code
}

func TestBalanceEndpoints(t *testing.T) {
	s, _ := newTestService(t)
	h := s.Handler()

	var bal struct {
		AccountID string          `json:"account_id"`
		Balance   decimal.Decimal `json:"balance"`
	}
	if code := get(t, h, "/v1/balances/a1", &bal); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !bal.Balance.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("balance = %s, want 120", bal.Balance)
	}
	if code := get(t, h, "/v1/balances/missing", nil); code != http.StatusNotFound {
		t.Fatalf("missing account status = %d, want 404", code)
	}

	var all []aggregate.Balance
	if code := get(t, h, "/v1/balances", &all); code != http.StatusOK || len(all) != 1 {
		t.Fatalf("balances = %+v (status %d)", all, code)
	}
}

func TestConvertEndpoint(t *testing.T) {
	s, _ := newTestService(t)
	h := s.Handler()

	var res conversion
	if code := get(t, h, "/v1/convert?amount=100&from=EUR&to=USD", &res); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !res.Available || res.Converted == nil || !res.Converted.Round(2).Equal(decimal.RequireFromString("111.11")) {
		t.Fatalf("conversion = %+v", res)
	}

	res = conversion{}
	get(t, h, "/v1/convert?amount=1&from=JPY&to=USD", &res)
	if res.Available || res.Converted != nil {
		t.Fatalf("unavailable conversion = %+v", res)
	}

	if code := get(t, h, "/v1/convert?amount=abc&from=EUR&to=USD", nil); code != http.StatusBadRequest {
		t.Fatalf("bad amount status = %d, want 400", code)
	}
}

func TestBudgetsEndpoint(t *testing.T) {
	s, _ := newTestService(t)
	h := s.Handler()

	var roots []aggregate.BudgetRollup
	if code := get(t, h, "/v1/budgets?month=2025-06", &roots); code != http.StatusOK || len(roots) != 1 {
		t.Fatalf("roots = %+v (status %d)", roots, code)
	}
	if code := get(t, h, "/v1/budgets?category=nope", nil); code != http.StatusNotFound {
		t.Fatalf("unknown category status = %d, want 404", code)
	}
	if code := get(t, h, "/v1/budgets?month=junk", nil); code != http.StatusBadRequest {
		t.Fatalf("bad month status = %d, want 400", code)
	}
}

func TestLifecycleEndpoint(t *testing.T) {
	s, _ := newTestService(t)
	h := s.Handler()

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/lifecycle", strings.NewReader(body)))
		return rec
	}

	if rec := post(`{"state":"inactive"}`); rec.Code != http.StatusOK {
		t.Fatalf("inactive status = %d", rec.Code)
	}
	if !s.snapshotStatus().Inactive {
		t.Fatal("status should report inactive")
	}

	rec := post(`{"state":"active"}`)
	var resp struct {
		Planned []model.Kind `json:"planned"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Planned) != 2 {
		t.Fatalf("planned = %v, want the priority tier", resp.Planned)
	}

	if rec := post(`{"state":"sleepy"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown state status = %d, want 400", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestService(t)
	s.observe()

	var st Status
	if code := get(t, s.Handler(), "/v1/status", &st); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(st.Kinds) != len(model.AllKinds()) {
		t.Fatalf("kinds = %d, want %d", len(st.Kinds), len(model.AllKinds()))
	}
	if st.Summary.Counts[model.KindAccounts] != 1 {
		t.Fatalf("summary = %+v", st.Summary)
	}
	if st.Summary.NetWorth != "120.00" {
		t.Fatalf("net worth = %q, want 120.00", st.Summary.NetWorth)
	}
}

func TestRunServesAndFlushesOnShutdown(t *testing.T) {
	s, _ := newTestService(t)
	s.cfg.Addr = "127.0.0.1:0"
	st := s.deps.Store.(*memStore)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if st.saved == nil {
		t.Fatal("cache not flushed on shutdown")
	}
}
