package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/finsync/internal/config"
	"github.com/theirongolddev/finsync/internal/refresh"
	"github.com/theirongolddev/finsync/internal/store"
	"github.com/theirongolddev/finsync/internal/tui"
	"github.com/theirongolddev/finsync/internal/tui/theme"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive dashboard",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	theme.SetActive(cfg.Appearance.Theme)

	if !flagOffline && !config.Exists() && flagConfig == "" {
		if _, err := tui.RunSetup(cfg); err != nil && !errors.Is(err, huh.ErrUserAborted) {
			return err
		}
	}

	// The alternate screen owns the terminal; logs go to a file.
	logf, err := openLogFile(filepath.Join(store.CacheDir(), "tui.log"))
	if err != nil {
		return err
	}
	defer func() { _ = logf.Close() }()
	slog.SetDefault(slog.New(slog.NewTextHandler(logf, &slog.HandlerOptions{Level: logLevel()})))

	// Force TrueColor so every background style produces ANSI codes.
	lipgloss.SetColorProfile(termenv.TrueColor)

	return withSession(false, func(ctx context.Context, s *session) error {
		s.engine.Start(ctx)
		sched := refresh.New(s.engine, s.cfg.Sync.InactivityThreshold(), s.log)

		app := tui.NewApp(tui.Deps{
			Engine:    s.engine,
			Views:     s.views,
			Scheduler: sched,
			Logger:    s.log,
		})
		if s.online() {
			for _, kind := range s.engine.Registry().Kinds() {
				s.engine.Request(kind, 0)
			}
		}

		p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	})
}
