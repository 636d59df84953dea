// Package theme defines the color palettes for the finsync dashboard.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme maps dashboard roles to colors.
type Theme struct {
	Name        string
	Background  lipgloss.Color
	Surface     lipgloss.Color // status bar, cards
	Border      lipgloss.Color
	TextDim     lipgloss.Color
	TextMuted   lipgloss.Color
	TextPrimary lipgloss.Color
	Accent      lipgloss.Color

	Income   lipgloss.Color // positive balances, under-budget
	Expense  lipgloss.Color // negative balances, over-budget
	Warning  lipgloss.Color // approaching a limit, pending syncs
	Transfer lipgloss.Color
}

// Active is the palette used by every renderer.
var Active = FlexokiDark

// FlexokiDark is the default palette.
var FlexokiDark = Theme{
	Name:        "flexoki-dark",
	Background:  lipgloss.Color("#100F0F"),
	Surface:     lipgloss.Color("#1C1B1A"),
	Border:      lipgloss.Color("#403E3C"),
	TextDim:     lipgloss.Color("#575653"),
	TextMuted:   lipgloss.Color("#878580"),
	TextPrimary: lipgloss.Color("#FFFCF0"),
	Accent:      lipgloss.Color("#3AA99F"),
	Income:      lipgloss.Color("#879A39"),
	Expense:     lipgloss.Color("#D14D41"),
	Warning:     lipgloss.Color("#DA702C"),
	Transfer:    lipgloss.Color("#4385BE"),
}

// CatppuccinMocha is a soft pastel palette.
var CatppuccinMocha = Theme{
	Name:        "catppuccin-mocha",
	Background:  lipgloss.Color("#1E1E2E"),
	Surface:     lipgloss.Color("#313244"),
	Border:      lipgloss.Color("#585B70"),
	TextDim:     lipgloss.Color("#6C7086"),
	TextMuted:   lipgloss.Color("#A6ADC8"),
	TextPrimary: lipgloss.Color("#CDD6F4"),
	Accent:      lipgloss.Color("#89B4FA"),
	Income:      lipgloss.Color("#A6E3A1"),
	Expense:     lipgloss.Color("#F38BA8"),
	Warning:     lipgloss.Color("#FAB387"),
	Transfer:    lipgloss.Color("#74C7EC"),
}

// Terminal sticks to the 16 ANSI colors.
var Terminal = Theme{
	Name:        "terminal",
	Background:  lipgloss.Color("0"),
	Surface:     lipgloss.Color("0"),
	Border:      lipgloss.Color("8"),
	TextDim:     lipgloss.Color("8"),
	TextMuted:   lipgloss.Color("7"),
	TextPrimary: lipgloss.Color("15"),
	Accent:      lipgloss.Color("6"),
	Income:      lipgloss.Color("2"),
	Expense:     lipgloss.Color("1"),
	Warning:     lipgloss.Color("3"),
	Transfer:    lipgloss.Color("4"),
}

// All lists the selectable palettes.
var All = []Theme{FlexokiDark, CatppuccinMocha, Terminal}

// Names returns the palette names in display order.
func Names() []string {
	out := make([]string, len(All))
	for i, t := range All {
		out[i] = t.Name
	}
	return out
}

// ByName returns the named palette, defaulting to FlexokiDark.
func ByName(name string) Theme {
	for _, t := range All {
		if t.Name == name {
			return t
		}
	}
	return FlexokiDark
}

// SetActive switches the active palette.
func SetActive(name string) {
	Active = ByName(name)
}
