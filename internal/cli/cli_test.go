package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount string
		cur    string
		want   string
	}{
		{"120", "USD", "$120.00"},
		{"1234.5", "usd", "$1,234.50"},
		{"-30", "USD", "-$30.00"},
		{"0.005", "USD", "$0.01"},
		{"12.3", "XYZ", "12.30 XYZ"},
	}
	for _, tt := range tests {
		got := FormatMoney(decimal.RequireFromString(tt.amount), tt.cur)
		if got != tt.want {
			t.Errorf("FormatMoney(%s, %s) = %q, want %q", tt.amount, tt.cur, got, tt.want)
		}
	}
}

func TestFormatSigned(t *testing.T) {
	if got := FormatSigned(decimal.NewFromInt(5), "USD"); got != "+$5.00" {
		t.Errorf("FormatSigned = %q", got)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
	}
	for in, want := range tests {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatAgo(t *testing.T) {
	if got := FormatAgo(time.Time{}); got != "never" {
		t.Errorf("FormatAgo(zero) = %q, want never", got)
	}
	if got := FormatAgo(time.Now().Add(-3 * time.Minute)); !strings.Contains(got, "minutes ago") {
		t.Errorf("FormatAgo(-3m) = %q", got)
	}
}

func TestUsedRatio(t *testing.T) {
	if r := UsedRatio(decimal.NewFromInt(50), decimal.NewFromInt(200)); r != 0.25 {
		t.Errorf("UsedRatio = %v, want 0.25", r)
	}
	if r := UsedRatio(decimal.NewFromInt(50), decimal.Zero); r != 0 {
		t.Errorf("UsedRatio without budget = %v, want 0", r)
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(Table{
		Title:   "Balances",
		Headers: []string{"Account", "Balance"},
		Rows: [][]string{
			{"Wallet", "$120.00"},
			{"---"},
			{"Total", "$120.00"},
		},
	})
	for _, want := range []string{"Balances", "Account", "Wallet", "Total", "╭", "╯"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if RenderTable(Table{}) != "" {
		t.Error("empty table should render nothing")
	}
}

func TestRenderBudgetBar(t *testing.T) {
	out := RenderBudgetBar(decimal.NewFromInt(150), decimal.NewFromInt(100), 10)
	if !strings.Contains(out, "150.0%") {
		t.Errorf("bar = %q, want overspend percentage", out)
	}
	if strings.Count(out, "█") != 10 {
		t.Errorf("overspent bar should be full: %q", out)
	}
}
