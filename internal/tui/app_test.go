package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/aggregate"
	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/config"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/refresh"
	"github.com/theirongolddev/finsync/internal/remote"
	"github.com/theirongolddev/finsync/internal/syncer"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

type emptyFetcher struct{}

func (emptyFetcher) Fetch(context.Context, string, remote.Query) ([]byte, error) {
	return []byte("[]"), nil
}

func newTestApp(t *testing.T) (App, *syncer.Engine) {
	t.Helper()
	c := cache.New()
	eng := syncer.New(c, emptyFetcher{}, syncer.Options{})
	t.Cleanup(eng.Close)

	d := decimal.RequireFromString
	if _, err := cache.Merge(c, model.KindAccounts, []model.Account{
		{Meta: model.Meta{ID: "a1"}, Name: "Wallet", OpeningBalance: d("100"), Currency: "USD", Status: model.AccountActive},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Merge(c, model.KindLedgerEntries, []model.LedgerEntry{
		{Meta: model.Meta{ID: "e1"}, AccountID: "a1", Amount: d("20"), Type: model.EntryIncome, Status: model.StatusCompleted},
	}); err != nil {
		t.Fatal(err)
	}

	a := NewApp(Deps{
		Engine:    eng,
		Views:     aggregate.NewViews(c, "USD"),
		Scheduler: refresh.New(eng, 0, nil),
	})
	m, _ := a.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m.(App), eng
}

func press(t *testing.T, a App, key string) App {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	m, _ := a.Update(msg)
	return m.(App)
}

func TestOverviewShowsBalances(t *testing.T) {
	a, _ := newTestApp(t)
	view := a.View()
	for _, want := range []string{"Net worth", "Wallet", "$120.00"} {
		if !strings.Contains(view, want) {
			t.Fatalf("overview missing %q", want)
		}
	}
}

func TestTabKeysSwitchPages(t *testing.T) {
	a, _ := newTestApp(t)

	a = press(t, a, "b")
	if a.activeTab != 1 {
		t.Fatalf("activeTab = %d, want 1", a.activeTab)
	}
	if !strings.Contains(a.View(), "Budgets "+a.month.String()) {
		t.Fatal("budgets tab not rendered")
	}

	a = press(t, a, "tab")
	if a.activeTab != 2 {
		t.Fatalf("activeTab after tab = %d, want 2", a.activeTab)
	}
	a = press(t, a, "s")
	if !strings.Contains(a.View(), "ledger_entries") {
		t.Fatal("sync tab does not list kinds")
	}
}

func TestMonthNavigation(t *testing.T) {
	a, _ := newTestApp(t)
	start := a.month
	a = press(t, a, "[")
	a = press(t, a, "[")
	a = press(t, a, "]")
	if want := start.AddMonths(-1); a.month != want {
		t.Fatalf("month = %s, want %s", a.month, want)
	}
}

func TestFocusDrivesScheduler(t *testing.T) {
	a, _ := newTestApp(t)

	m, _ := a.Update(tea.BlurMsg{})
	a = m.(App)
	if !a.deps.Scheduler.Inactive() {
		t.Fatal("blur did not mark the scheduler inactive")
	}
	if !strings.Contains(a.View(), "paused") {
		t.Fatal("status bar does not show paused")
	}

	m, _ = a.Update(tea.FocusMsg{})
	a = m.(App)
	if a.deps.Scheduler.Inactive() {
		t.Fatal("focus did not mark the scheduler active")
	}
}

func TestSyncedMsgUpdatesStatus(t *testing.T) {
	a, _ := newTestApp(t)
	at := time.Now().Add(-3 * time.Second)

	m, cmd := a.Update(SyncedMsg{Result: syncer.Result{Kind: model.KindAccounts, StartedAt: at, Took: time.Second}})
	a = m.(App)
	if cmd == nil {
		t.Fatal("expected a command waiting for the next sync")
	}
	if !a.lastSync.Equal(at.Add(time.Second)) {
		t.Fatalf("lastSync = %v, want %v", a.lastSync, at.Add(time.Second))
	}

	m, _ = a.Update(SyncedMsg{Err: errors.New("boom")})
	a = m.(App)
	if a.lastErr == nil {
		t.Fatal("error not recorded")
	}
}

func TestObserverForwardsEngineSyncs(t *testing.T) {
	a, eng := newTestApp(t)

	if _, err := eng.Sync(context.Background(), model.KindAccounts, nil, false); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-a.synced:
		sm, ok := msg.(SyncedMsg)
		if !ok || sm.Result.Kind != model.KindAccounts {
			t.Fatalf("got %#v, want accounts sync", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no sync forwarded")
	}
}

func TestNarrowTerminal(t *testing.T) {
	a, _ := newTestApp(t)
	m, _ := a.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	if !strings.Contains(m.(App).View(), "too narrow") {
		t.Fatal("expected narrow-terminal notice")
	}
}

func TestWindow(t *testing.T) {
	s := "a\nb\nc\nd\ne"
	if got := window(s, 1, 2); got != "b\nc" {
		t.Fatalf("window(1, 2) = %q", got)
	}
	if got := window(s, 10, 2); got != "d\ne" {
		t.Fatalf("window clamps to the end: got %q", got)
	}
	if got := padHeight("x", 3); got != "x\n\n" {
		t.Fatalf("padHeight = %q", got)
	}
}

func TestSetupValuesApply(t *testing.T) {
	v := setupValues{url: " https://x.supabase.co/ ", anonKey: "k", baseCurrency: "eur", theme: "terminal", realtime: true}
	cfg := config.DefaultConfig()
	v.apply(&cfg)

	if cfg.Supabase.URL != "https://x.supabase.co" {
		t.Fatalf("URL = %q", cfg.Supabase.URL)
	}
	if cfg.General.BaseCurrency != "EUR" {
		t.Fatalf("BaseCurrency = %q, want EUR", cfg.General.BaseCurrency)
	}
	if cfg.Appearance.Theme != "terminal" {
		t.Fatalf("Theme = %q", cfg.Appearance.Theme)
	}
	if err := validateURL(v.url); err != nil {
		t.Fatalf("validateURL: %v", err)
	}
	if err := validateURL("not a url"); err == nil {
		t.Fatal("validateURL accepted garbage")
	}
	if err := validateCurrency("eu1"); err == nil {
		t.Fatal("validateCurrency accepted a digit")
	}
}
