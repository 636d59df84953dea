package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/theirongolddev/finsync/internal/tui/theme"
)

// Tab is one dashboard page.
type Tab struct {
	Name string
	Key  rune
}

// Tabs lists the dashboard pages in order. Every key is the first letter
// of its name, lower-cased.
var Tabs = []Tab{
	{Name: "Overview", Key: 'o'},
	{Name: "Budgets", Key: 'b'},
	{Name: "Transfers", Key: 't'},
	{Name: "Sync", Key: 's'},
}

// TabVisualWidth is the rendered width of tab, including padding.
func TabVisualWidth(tab Tab, active bool) int {
	w := lipgloss.Width(tab.Name) + 2
	if !active {
		w += 2 // "[" and "]" around the key
	}
	return w
}

// RenderTabBar renders the tab row with activeIdx highlighted.
func RenderTabBar(activeIdx, width int) string {
	t := theme.Active

	activeStyle := lipgloss.NewStyle().
		Foreground(t.Accent).
		Background(t.Surface).
		Bold(true).
		Padding(0, 1)
	inactiveStyle := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Padding(0, 1)
	keyStyle := lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
	bracketStyle := lipgloss.NewStyle().Foreground(t.TextDim)

	parts := make([]string, 0, len(Tabs))
	for i, tab := range Tabs {
		if i == activeIdx {
			parts = append(parts, activeStyle.Render(tab.Name))
			continue
		}
		label := bracketStyle.Render("[") + keyStyle.Render(tab.Name[:1]) +
			bracketStyle.Render("]") + tab.Name[1:]
		parts = append(parts, inactiveStyle.Render(label))
	}

	row := strings.Join(parts, " ")
	return lipgloss.NewStyle().Width(width).Render(row)
}

// TabIdxByKey returns the tab bound to key, or -1.
func TabIdxByKey(key rune) int {
	for i, tab := range Tabs {
		if tab.Key == key {
			return i
		}
	}
	return -1
}

// TabAtX returns the tab under column x, or -1.
func TabAtX(x, activeIdx int) int {
	pos := 0
	for i, tab := range Tabs {
		w := TabVisualWidth(tab, i == activeIdx)
		if x >= pos && x < pos+w {
			return i
		}
		pos += w + 1
	}
	return -1
}
