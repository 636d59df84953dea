package components

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/theirongolddev/finsync/internal/tui/theme"
)

// SyncIndicator summarizes engine state for the status bar.
type SyncIndicator struct {
	Syncing  bool
	Pending  int
	Failed   int
	Inactive bool
	LastSync string
}

// RenderStatusBar renders the bottom bar: key hints on the left, sync
// state on the right.
func RenderStatusBar(width int, s SyncIndicator) string {
	t := theme.Active

	base := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	warn := base.Foreground(t.Warning)
	bad := base.Foreground(t.Expense)

	left := base.Render(" [?]help  [r]efresh  [R]full  [q]uit")

	var right []string
	switch {
	case s.Inactive:
		right = append(right, base.Render("paused"))
	case s.Syncing:
		right = append(right, warn.Render("syncing…"))
	}
	if s.Pending > 0 {
		right = append(right, warn.Render(plural(s.Pending, "pending")))
	}
	if s.Failed > 0 {
		right = append(right, bad.Render(plural(s.Failed, "failed")))
	}
	if s.LastSync != "" {
		right = append(right, base.Render("synced "+s.LastSync))
	}
	r := strings.Join(right, base.Render("  ")) + base.Render(" ")

	gap := width - lipgloss.Width(left) - lipgloss.Width(r)
	if gap < 0 {
		gap = 0
	}
	return left + base.Render(strings.Repeat(" ", gap)) + r
}

func plural(n int, word string) string {
	return strconv.Itoa(n) + " " + word
}
