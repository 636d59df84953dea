package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/aggregate"
	"github.com/theirongolddev/finsync/internal/cli"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/tui/components"
	"github.com/theirongolddev/finsync/internal/tui/theme"
)

func (a App) renderOverviewTab(cw int) string {
	t := theme.Active
	v := a.deps.Views
	if v == nil {
		return ""
	}
	base := v.BaseCurrency()
	nw := v.NetWorth(base)
	balances := v.Balances()

	active := 0
	for _, b := range balances {
		if b.Status != model.AccountArchived {
			active++
		}
	}
	var owed decimal.Decimal
	for _, x := range v.Outstanding() {
		if conv, ok := v.Convert(x.Net, x.Currency, base); ok {
			owed = owed.Add(conv)
		}
	}

	nwNote := ""
	if n := len(nw.Unconverted); n > 0 {
		nwNote = fmt.Sprintf("%d account(s) without a rate", n)
	}
	cards := components.MetricRow([]components.Metric{
		{Label: "Net worth", Value: cli.FormatMoney(nw.Total, nw.Currency), Note: nwNote},
		{Label: "Accounts", Value: fmt.Sprintf("%d active", active)},
		{Label: "Net owed to you", Value: cli.FormatSigned(owed, base)},
	}, cw)

	nameW := max(cw-40, 16)
	head := lipgloss.NewStyle().Foreground(t.TextMuted)
	pos := lipgloss.NewStyle().Foreground(t.Income)
	neg := lipgloss.NewStyle().Foreground(t.Expense)
	dim := lipgloss.NewStyle().Foreground(t.TextDim)

	var b strings.Builder
	b.WriteString(head.Render(padRight("Account", nameW) + padLeft("Balance", 20) + "  Currency"))
	b.WriteString("\n")
	for _, bal := range balances {
		amount := padLeft(cli.FormatMoney(bal.Balance, bal.Currency), 20)
		switch {
		case bal.Status == model.AccountArchived:
			amount = dim.Render(amount)
		case bal.Balance.IsNegative():
			amount = neg.Render(amount)
		default:
			amount = pos.Render(amount)
		}
		name := padRight(truncate(bal.Name, nameW-1), nameW)
		if bal.Status == model.AccountArchived {
			name = dim.Render(name)
		}
		b.WriteString(name + amount + "  " + bal.Currency + "\n")
	}
	if len(balances) == 0 {
		b.WriteString(dim.Render("No accounts synced yet. Press r to refresh."))
	}

	return cards + "\n" + components.ContentCard("Balances", strings.TrimRight(b.String(), "\n"), cw)
}

func (a App) renderBudgetsTab(cw int) string {
	t := theme.Active
	v := a.deps.Views
	if v == nil {
		return ""
	}
	rollups := v.RootRollups(a.month)
	base := v.BaseCurrency()

	dim := lipgloss.NewStyle().Foreground(t.TextDim)
	warn := lipgloss.NewStyle().Foreground(t.Warning)

	labelW := 22
	barW := max(cw-labelW-44, 10)

	var b strings.Builder
	var lines int
	var emit func(r aggregate.BudgetRollup, depth int)
	emit = func(r aggregate.BudgetRollup, depth int) {
		if r.Budget.IsZero() && r.Spending.IsZero() {
			return
		}
		label := strings.Repeat("  ", depth) + r.Name
		ratio := cli.UsedRatio(r.Spending, r.Budget)
		b.WriteString(components.BudgetBar(label, ratio, labelW, barW))
		b.WriteString("  ")
		b.WriteString(cli.FormatMoney(r.Spending, r.Currency))
		b.WriteString(dim.Render(" / " + cli.FormatMoney(r.Budget, r.Currency)))
		if r.Cyclic {
			b.WriteString(warn.Render("  cycle"))
		}
		if r.Unconverted > 0 {
			b.WriteString(warn.Render(fmt.Sprintf("  %d unconverted", r.Unconverted)))
		}
		b.WriteString("\n")
		lines++
		for _, sub := range r.Subcategories {
			emit(sub, depth+1)
		}
	}
	for _, r := range rollups {
		emit(r, 0)
	}
	if lines == 0 {
		b.WriteString(dim.Render("No budgets or spending this month."))
	}

	title := fmt.Sprintf("Budgets %s (%s)  [ / ] to change month", a.month, base)
	return components.ContentCard(title, strings.TrimRight(b.String(), "\n"), cw)
}

func (a App) renderTransfersTab(cw int) string {
	t := theme.Active
	v := a.deps.Views
	if v == nil {
		return ""
	}
	set := v.Transfers()
	names := make(map[string]string)
	for _, bal := range v.Balances() {
		names[bal.AccountID] = bal.Name
	}
	nameOf := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}

	dim := lipgloss.NewStyle().Foreground(t.TextDim)
	flow := lipgloss.NewStyle().Foreground(t.Transfer)
	warn := lipgloss.NewStyle().Foreground(t.Warning)

	var b strings.Builder
	for i := len(set.Pairs) - 1; i >= 0; i-- {
		p := set.Pairs[i]
		line := fmt.Sprintf("%s  %s %s %s  %s",
			p.Date.Format(time.DateOnly),
			truncate(nameOf(p.FromAccountID), 18),
			flow.Render("→"),
			truncate(nameOf(p.ToAccountID), 18),
			cli.FormatMoney(p.OutAmount, p.OutCurrency))
		if p.Rate != nil {
			line += dim.Render(fmt.Sprintf("  = %s @ %s",
				cli.FormatMoney(p.InAmount, p.InCurrency), cli.FormatRate(*p.Rate)))
		}
		b.WriteString(line + "\n")
	}
	if len(set.Pairs) == 0 {
		b.WriteString(dim.Render("No transfers.") + "\n")
	}
	for _, o := range set.Orphans {
		b.WriteString(warn.Render(fmt.Sprintf("unpaired leg %s on %s (%s)",
			o.ID, nameOf(o.AccountID), cli.FormatMoney(o.Amount, o.Currency))))
		b.WriteString("\n")
	}
	transfers := components.ContentCard("Transfers", strings.TrimRight(b.String(), "\n"), cw)

	b.Reset()
	exposures := v.Outstanding()
	for _, x := range exposures {
		b.WriteString(padRight(truncate(x.Counterparty, 24), 26))
		b.WriteString(padLeft(cli.FormatSigned(x.Net, x.Currency), 18))
		b.WriteString(dim.Render(fmt.Sprintf("  %d record(s)", x.Records)))
		b.WriteString("\n")
	}
	if len(exposures) == 0 {
		b.WriteString(dim.Render("Nothing outstanding."))
	}
	loans := components.ContentCard("Borrowed & lent", strings.TrimRight(b.String(), "\n"), cw)

	return transfers + "\n" + loans
}

func (a App) renderSyncTab(cw int) string {
	t := theme.Active
	dim := lipgloss.NewStyle().Foreground(t.TextDim)
	bad := lipgloss.NewStyle().Foreground(t.Expense)
	warn := lipgloss.NewStyle().Foreground(t.Warning)
	head := lipgloss.NewStyle().Foreground(t.TextMuted)

	var b strings.Builder
	b.WriteString(head.Render(padRight("Kind", 18) + padRight("Mode", 11) + padLeft("Records", 9) +
		"  " + padRight("Cursor", 16) + "State"))
	b.WriteString("\n")
	for _, st := range a.status {
		cursor := "never"
		if !st.Cursor.IsZero() {
			cursor = cli.FormatAgo(st.Cursor)
		}
		state := dim.Render("idle")
		switch {
		case st.LastError != "":
			state = bad.Render(truncate(st.LastError, max(cw-60, 12)))
		case st.GuardLeft != "":
			state = warn.Render("guarded " + st.GuardLeft)
		case !st.PendingAt.IsZero():
			state = warn.Render("pending")
		case st.LastResult != nil:
			r := st.LastResult
			mode := "full"
			if r.Incremental {
				mode = "incr"
			}
			state = dim.Render(fmt.Sprintf("%s +%d -%d in %s", mode, r.Upserted, r.Removed,
				r.Took.Round(time.Millisecond)))
		}
		b.WriteString(padRight(string(st.Kind), 18) + padRight(st.Mode, 11) +
			padLeft(cli.FormatNumber(int64(st.Records)), 9) + "  " + padRight(cursor, 16) + state)
		b.WriteString("\n")
	}
	if a.lastErr != nil {
		b.WriteString("\n" + bad.Render(truncate(a.lastErr.Error(), cw-4)))
	}
	if a.deps.Scheduler != nil && a.deps.Scheduler.Inactive() {
		b.WriteString("\n" + dim.Render("Window unfocused; refresh resumes on focus."))
	}
	return components.ContentCard("Sync", strings.TrimRight(b.String(), "\n"), cw)
}

func padLeft(s string, w int) string {
	if n := lipgloss.Width(s); n < w {
		return strings.Repeat(" ", w-n) + s
	}
	return s
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}
