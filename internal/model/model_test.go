package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustMonth(t *testing.T, s string) Month {
	t.Helper()
	m, err := ParseMonth(s)
	if err != nil {
		t.Fatalf("ParseMonth(%q): %v", s, err)
	}
	return m
}

func TestBudgetCovers(t *testing.T) {
	jan := mustMonth(t, "2025-01")
	mar := mustMonth(t, "2025-03")
	jun := mustMonth(t, "2025-06")

	oneShot := Budget{Status: BudgetActive, Month: &mar}
	recurring := Budget{Status: BudgetActive, Recurring: true, StartMonth: &mar}
	bounded := Budget{Status: BudgetActive, Recurring: true, StartMonth: &jan, EndMonth: &mar}
	inactive := Budget{Status: BudgetInactive, Month: &mar}

	tests := []struct {
		name string
		b    Budget
		m    Month
		want bool
	}{
		{"one-shot match", oneShot, mar, true},
		{"one-shot other month", oneShot, jun, false},
		{"recurring open-ended", recurring, jun, true},
		{"recurring before start", recurring, jan, false},
		{"bounded at end", bounded, mar, true},
		{"bounded after end", bounded, jun, false},
		{"inactive", inactive, mar, false},
	}
	for _, tt := range tests {
		if got := tt.b.Covers(tt.m); got != tt.want {
			t.Errorf("%s: Covers(%s) = %v, want %v", tt.name, tt.m, got, tt.want)
		}
	}
}

func TestLedgerEntrySigned(t *testing.T) {
	amt := decimal.NewFromInt(30)
	for _, tc := range []struct {
		typ  EntryType
		want int64
	}{
		{EntryIncome, 30},
		{EntryTransferIn, 30},
		{EntryExpense, -30},
		{EntryTransferOut, -30},
	} {
		e := LedgerEntry{Amount: amt, Type: tc.typ}
		if !e.Signed().Equal(decimal.NewFromInt(tc.want)) {
			t.Errorf("%s: Signed() = %s, want %d", tc.typ, e.Signed(), tc.want)
		}
	}
}

func TestDateDecodesDateAndTimestamp(t *testing.T) {
	var rows []struct {
		D Date `json:"d"`
	}
	raw := `[{"d":"2025-03-04"},{"d":"2025-03-04T23:10:00+00:00"}]`
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	for i, r := range rows {
		if !r.D.Equal(want) {
			t.Errorf("row %d = %v, want %v", i, r.D.Time, want)
		}
	}
}

func TestChangeOwner(t *testing.T) {
	c := Change{EventType: EventDelete, Old: json.RawMessage(`{"id":"a","user_id":"u1"}`)}
	if got := c.Owner(); got != "u1" {
		t.Fatalf("Owner() = %q, want u1", got)
	}
}

func TestMonthAddMonths(t *testing.T) {
	nov := mustMonth(t, "2025-11")
	if got := nov.AddMonths(3).String(); got != "2026-02" {
		t.Fatalf("2025-11 + 3 = %s, want 2026-02", got)
	}
	if got := nov.AddMonths(-11).String(); got != "2024-12" {
		t.Fatalf("2025-11 - 11 = %s, want 2024-12", got)
	}
}
