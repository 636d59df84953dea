package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/aggregate"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/syncer"
)

func TestParseEntryType(t *testing.T) {
	tests := []struct {
		in      string
		want    model.EntryType
		wantErr bool
	}{
		{"income", model.EntryIncome, false},
		{"IN", model.EntryIncome, false},
		{"expense", model.EntryExpense, false},
		{"out", model.EntryExpense, false},
		{"transfer", "", true},
	}
	for _, tt := range tests {
		got, err := parseEntryType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseEntryType(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("parseEntryType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	d, err := parseAmount("42.50")
	if err != nil {
		t.Fatalf("parseAmount: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("42.5")) {
		t.Fatalf("parseAmount = %s, want 42.5", d)
	}
	for _, bad := range []string{"", "abc", "0", "-3"} {
		if _, err := parseAmount(bad); err == nil {
			t.Fatalf("parseAmount(%q) succeeded, want error", bad)
		}
	}
}

func TestParseDateFlag(t *testing.T) {
	d, err := parseDateFlag("")
	if err != nil || !d.IsZero() {
		t.Fatalf("parseDateFlag(\"\") = %v, %v; want zero date", d, err)
	}
	if _, err := parseDateFlag("2025-13-01"); err == nil {
		t.Fatal("parseDateFlag accepted month 13")
	}
	d, err = parseDateFlag("2025-11-03")
	if err != nil {
		t.Fatalf("parseDateFlag: %v", err)
	}
	if got := d.Format("2006-01-02"); got != "2025-11-03" {
		t.Fatalf("parseDateFlag = %s, want 2025-11-03", got)
	}
}

func TestFilterDetachArg(t *testing.T) {
	got := filterDetachArg([]string{"daemon", "--detach", "--addr", ":9", "--detach=true"})
	want := []string{"daemon", "--addr", ":9"}
	if len(got) != len(want) {
		t.Fatalf("filterDetachArg = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("filterDetachArg = %v, want %v", got, want)
		}
	}
}

func TestRealtimeTablesDeduplicates(t *testing.T) {
	tables := realtimeTables(syncer.NewRegistry())
	seen := make(map[string]bool)
	for _, tb := range tables {
		if seen[tb] {
			t.Fatalf("table %q listed twice in %v", tb, tables)
		}
		seen[tb] = true
	}
	if !seen["ledger_entries"] {
		t.Fatalf("realtimeTables = %v, want ledger_entries", tables)
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey(""); got == "" {
		t.Fatal("maskKey(\"\") is empty, want a placeholder")
	}
	key := "eyJhbGciOiJIUzI1NiJ9.secretsecretsecret"
	if got := maskKey(key); got == key {
		t.Fatalf("maskKey returned the key unmasked")
	}
}

func TestRenderBudgetChart(t *testing.T) {
	month, err := model.ParseMonth("2025-11")
	if err != nil {
		t.Fatal(err)
	}
	rollups := []aggregate.BudgetRollup{
		{Name: "Food", Budget: decimal.NewFromInt(400), Spending: decimal.NewFromInt(450)},
		{Name: "Rent", Budget: decimal.NewFromInt(1200), Spending: decimal.NewFromInt(1200)},
	}

	var buf bytes.Buffer
	if err := renderBudgetChart(&buf, month, "USD", rollups); err != nil {
		t.Fatalf("renderBudgetChart: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("output is not a PNG (%d bytes)", buf.Len())
	}
}

func TestRenderBudgetChartEmpty(t *testing.T) {
	month, _ := model.ParseMonth("2025-11")
	var buf bytes.Buffer
	err := renderBudgetChart(&buf, month, "USD", []aggregate.BudgetRollup{{Name: "Idle"}})
	if !errors.Is(err, errNothingToChart) {
		t.Fatalf("renderBudgetChart err = %v, want errNothingToChart", err)
	}
}
