package tui

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/theirongolddev/finsync/internal/config"
	"github.com/theirongolddev/finsync/internal/tui/theme"
)

// setupValues are the fields the setup form edits.
type setupValues struct {
	url          string
	anonKey      string
	userID       string
	baseCurrency string
	theme        string
	realtime     bool
}

func setupValuesFrom(cfg config.Config) setupValues {
	return setupValues{
		url:          cfg.Supabase.URL,
		anonKey:      cfg.Supabase.AnonKey,
		userID:       cfg.Supabase.UserID,
		baseCurrency: cfg.General.BaseCurrency,
		theme:        cfg.Appearance.Theme,
		realtime:     cfg.Sync.Realtime,
	}
}

func (v setupValues) apply(cfg *config.Config) {
	cfg.Supabase.URL = strings.TrimRight(strings.TrimSpace(v.url), "/")
	cfg.Supabase.AnonKey = strings.TrimSpace(v.anonKey)
	cfg.Supabase.UserID = strings.TrimSpace(v.userID)
	cfg.General.BaseCurrency = strings.ToUpper(strings.TrimSpace(v.baseCurrency))
	cfg.Appearance.Theme = v.theme
	cfg.Sync.Realtime = v.realtime
}

func newSetupForm(v *setupValues) *huh.Form {
	themes := make([]huh.Option[string], 0, len(theme.All))
	for _, name := range theme.Names() {
		themes = append(themes, huh.NewOption(name, name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to finsync").
				Description("Connect to your Supabase project. Values are saved to\n"+config.ConfigPath()),
			huh.NewInput().
				Title("Project URL").
				Placeholder("https://xyz.supabase.co").
				Value(&v.url).
				Validate(validateURL),
			huh.NewInput().
				Title("Anon key").
				EchoMode(huh.EchoModePassword).
				Value(&v.anonKey).
				Validate(required("anon key")),
			huh.NewInput().
				Title("User ID").
				Description("Leave blank to derive it from the access token.").
				Value(&v.userID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Base currency").
				Description("Budgets and net worth are reported in this currency.").
				CharLimit(3).
				Value(&v.baseCurrency).
				Validate(validateCurrency),
			huh.NewConfirm().
				Title("Subscribe to realtime changes?").
				Value(&v.realtime),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themes...).
				Value(&v.theme),
		),
	).WithShowHelp(true)
}

// RunSetup shows the setup form on the terminal and saves the result.
// It returns the updated config.
func RunSetup(cfg config.Config) (config.Config, error) {
	vals := setupValuesFrom(cfg)
	if err := newSetupForm(&vals).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return cfg, err
		}
		return cfg, fmt.Errorf("setup form: %w", err)
	}
	vals.apply(&cfg)
	if err := config.Save(cfg); err != nil {
		return cfg, fmt.Errorf("saving config: %w", err)
	}
	theme.SetActive(cfg.Appearance.Theme)
	return cfg, nil
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return errors.New("enter an http(s) URL")
	}
	return nil
}

func validateCurrency(s string) error {
	s = strings.TrimSpace(s)
	if len(s) != 3 {
		return errors.New("use a three-letter ISO 4217 code")
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return errors.New("use a three-letter ISO 4217 code")
		}
	}
	return nil
}
