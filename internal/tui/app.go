// Package tui provides the interactive Bubble Tea dashboard for finsync.
package tui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/finsync/internal/aggregate"
	"github.com/theirongolddev/finsync/internal/cli"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/refresh"
	"github.com/theirongolddev/finsync/internal/syncer"
	"github.com/theirongolddev/finsync/internal/tui/components"
	"github.com/theirongolddev/finsync/internal/tui/theme"
)

// SyncedMsg is delivered for every sync the engine finishes, whoever
// started it.
type SyncedMsg struct {
	Result syncer.Result
	Err    error
}

// refreshDoneMsg ends a user-initiated refresh of every kind.
type refreshDoneMsg struct {
	Err error
}

type tickMsg time.Time

// Deps are the long-lived services the dashboard reads from.
type Deps struct {
	Engine    *syncer.Engine
	Views     *aggregate.Views
	Scheduler *refresh.Scheduler
	Logger    *slog.Logger
}

// App is the root Bubble Tea model.
type App struct {
	deps Deps
	log  *slog.Logger

	// Sync state
	synced     chan tea.Msg
	status     []syncer.KindStatus
	refreshing bool
	lastSync   time.Time
	lastErr    error
	failed     int

	// UI state
	width     int
	height    int
	activeTab int
	showHelp  bool
	month     model.Month
	scroll    int
	spinner   spinner.Model
}

const (
	minTerminalWidth = 80
	maxContentWidth  = 160
	minContentHeight = 5
	syncedBuffer     = 64
)

// NewApp returns the dashboard model. It registers an engine observer so
// background syncs redraw the screen.
func NewApp(d Deps) App {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	a := App{
		deps:    d,
		log:     d.Logger,
		synced:  make(chan tea.Msg, syncedBuffer),
		month:   model.MonthOf(time.Now()),
		spinner: sp,
	}
	if d.Engine != nil {
		ch := a.synced
		d.Engine.Observe(func(res syncer.Result, err error) {
			select {
			case ch <- SyncedMsg{Result: res, Err: err}:
			default:
			}
		})
		a.status = d.Engine.Status()
	}
	return a
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		tea.EnableMouseCellMotion,
		a.spinner.Tick,
		tickCmd(),
		waitForSynced(a.synced),
	)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.FocusMsg:
		if a.deps.Scheduler != nil {
			if plan := a.deps.Scheduler.BecameActive(); len(plan) > 0 {
				a.log.Debug("returned to foreground", "kinds", len(plan))
			}
		}
		return a, nil

	case tea.BlurMsg:
		if a.deps.Scheduler != nil {
			a.deps.Scheduler.BecameInactive()
		}
		return a, nil

	case SyncedMsg:
		a.recordSync(msg)
		return a, waitForSynced(a.synced)

	case refreshDoneMsg:
		a.refreshing = false
		a.lastErr = msg.Err
		a.refreshStatus()
		return a, nil

	case tickMsg:
		a.refreshStatus()
		return a, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	switch msg := msg.(type) {
	case tea.MouseMsg:
		return a.updateMouse(msg)
	case tea.KeyMsg:
		return a.updateKey(msg)
	}
	return a, nil
}

func (a App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if a.showHelp {
		switch key {
		case "q", "ctrl+c":
			return a, tea.Quit
		default:
			a.showHelp = false
			return a, nil
		}
	}

	switch key {
	case "q", "ctrl+c":
		return a, tea.Quit
	case "?":
		a.showHelp = true
		return a, nil
	case "tab", "right", "l":
		a.switchTab((a.activeTab + 1) % len(components.Tabs))
		return a, nil
	case "shift+tab", "left", "h":
		a.switchTab((a.activeTab + len(components.Tabs) - 1) % len(components.Tabs))
		return a, nil
	case "j", "down":
		a.scroll++
		return a, nil
	case "k", "up":
		if a.scroll > 0 {
			a.scroll--
		}
		return a, nil
	case "[":
		a.month = a.month.AddMonths(-1)
		return a, nil
	case "]":
		a.month = a.month.AddMonths(1)
		return a, nil
	case "r", "R":
		if a.refreshing || a.deps.Engine == nil {
			return a, nil
		}
		a.refreshing = true
		return a, refreshCmd(a.deps.Engine, key == "R")
	}

	if len(msg.Runes) == 1 {
		if idx := components.TabIdxByKey(msg.Runes[0]); idx >= 0 {
			a.switchTab(idx)
		}
	}
	return a, nil
}

func (a App) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		if a.scroll > 0 {
			a.scroll--
		}
	case tea.MouseButtonWheelDown:
		a.scroll++
	case tea.MouseButtonLeft:
		if msg.Action == tea.MouseActionPress && msg.Y == 0 {
			if idx := components.TabAtX(msg.X, a.activeTab); idx >= 0 {
				a.switchTab(idx)
			}
		}
	}
	return a, nil
}

func (a *App) switchTab(idx int) {
	if idx != a.activeTab {
		a.activeTab = idx
		a.scroll = 0
	}
}

func (a *App) recordSync(msg SyncedMsg) {
	if msg.Err != nil {
		a.lastErr = msg.Err
	} else if !msg.Result.Deferred {
		a.lastSync = msg.Result.StartedAt.Add(msg.Result.Took)
		a.lastErr = nil
	}
	a.refreshStatus()
}

func (a *App) refreshStatus() {
	if a.deps.Engine == nil {
		return
	}
	a.status = a.deps.Engine.Status()
	a.failed = 0
	for _, st := range a.status {
		if st.LastError != "" {
			a.failed++
		}
	}
}

func (a App) contentWidth() int {
	return min(a.width, maxContentWidth)
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	t := theme.Active
	msg := lipgloss.NewStyle().Foreground(t.Warning).
		Render("Terminal too narrow; widen to at least 80 columns.")
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, msg)
}

func (a App) viewHelp() string {
	t := theme.Active
	keyStyle := lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted)

	rows := [][2]string{
		{"o b t s", "switch tab"},
		{"tab / ←→", "next / previous tab"},
		{"j k ↑↓", "scroll"},
		{"[ ]", "previous / next budget month"},
		{"r", "incremental refresh of every kind"},
		{"R", "full refresh of every kind"},
		{"?", "this help"},
		{"q", "quit"},
	}
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(t.TextPrimary).Bold(true).Render("Keys"))
	b.WriteString("\n\n")
	for _, r := range rows {
		b.WriteString(keyStyle.Render(padRight(r[0], 10)))
		b.WriteString(descStyle.Render(r[1]))
		b.WriteString("\n")
	}
	card := components.ContentCard("", b.String(), 52)
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, card)
}

func (a App) viewMain() string {
	t := theme.Active
	w := a.width
	cw := a.contentWidth()

	header := components.RenderTabBar(a.activeTab, w)
	statusBar := components.RenderStatusBar(w, a.indicator())

	contentH := a.height - lipgloss.Height(header) - lipgloss.Height(statusBar)
	if contentH < minContentHeight {
		contentH = minContentHeight
	}

	var content string
	switch a.activeTab {
	case 0:
		content = a.renderOverviewTab(cw)
	case 1:
		content = a.renderBudgetsTab(cw)
	case 2:
		content = a.renderTransfersTab(cw)
	case 3:
		content = a.renderSyncTab(cw)
	}
	content = padHeight(window(content, a.scroll, contentH), contentH)
	content = lipgloss.Place(w, contentH, lipgloss.Center, lipgloss.Top, content,
		lipgloss.WithWhitespaceBackground(t.Background))

	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

func (a App) indicator() components.SyncIndicator {
	ind := components.SyncIndicator{Syncing: a.refreshing, Failed: a.failed}
	if a.deps.Scheduler != nil {
		ind.Inactive = a.deps.Scheduler.Inactive()
	}
	for _, st := range a.status {
		if !st.PendingAt.IsZero() {
			ind.Pending++
		}
	}
	if !a.lastSync.IsZero() {
		ind.LastSync = cli.FormatAgo(a.lastSync)
	}
	if a.refreshing {
		ind.LastSync = a.spinner.View()
	}
	return ind
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForSynced blocks until the engine reports the next sync.
func waitForSynced(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// refreshCmd syncs every kind in the background.
func refreshCmd(e *syncer.Engine, full bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		_, err := e.SyncAll(ctx, e.Registry().Kinds(), full)
		return refreshDoneMsg{Err: err}
	}
}

// window returns up to h lines of s starting at line off.
func window(s string, off, h int) string {
	lines := strings.Split(s, "\n")
	if off > len(lines)-h {
		off = len(lines) - h
	}
	if off < 0 {
		off = 0
	}
	end := min(off+h, len(lines))
	return strings.Join(lines[off:end], "\n")
}

func padHeight(s string, h int) string {
	n := strings.Count(s, "\n") + 1
	if n >= h {
		return s
	}
	return s + strings.Repeat("\n", h-n)
}

func padRight(s string, w int) string {
	if n := lipgloss.Width(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}
