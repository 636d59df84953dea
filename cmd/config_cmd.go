package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/finsync/internal/config"
	"github.com/theirongolddev/finsync/internal/remote"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := flagConfig
	if path == "" {
		path = config.ConfigPath()
	}
	fmt.Printf("  Config file: %s\n", path)
	if flagConfig != "" || config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [supabase]")
	fmt.Printf("    URL:          %s\n", orUnset(cfg.Supabase.URL))
	fmt.Printf("    Anon key:     %s\n", maskKey(cfg.Supabase.AnonKey))
	fmt.Printf("    Access token: %s\n", maskKey(cfg.Supabase.AccessToken))
	if p, err := remote.ResolvePrincipal(cfg.Supabase.UserID, cfg.Supabase.AccessToken); err == nil {
		fmt.Printf("    User:         %s\n", p)
	} else {
		fmt.Printf("    User:         unresolved (%v)\n", err)
	}
	fmt.Println()

	fmt.Println("  [sync]")
	fmt.Printf("    Guard window:   %s\n", cfg.Sync.GuardWindow())
	fmt.Printf("    Debounce:       %s\n", cfg.Sync.Debounce())
	fmt.Printf("    Full refresh:   after %s inactive\n", cfg.Sync.InactivityThreshold())
	fmt.Printf("    Daemon poll:    %s\n", cfg.Sync.PollInterval())
	fmt.Printf("    Daemon flush:   %s\n", cfg.Sync.FlushInterval())
	fmt.Printf("    Realtime:       %v\n", cfg.Sync.Realtime)
	fmt.Println()

	fmt.Println("  [general]")
	fmt.Printf("    Base currency: %s\n", cfg.General.BaseCurrency)
	fmt.Printf("    Cache:         %s\n", orUnset(cfg.General.CachePath))
	fmt.Println()

	fmt.Println("  [appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  Run `finsync setup` to reconfigure.")
	return nil
}

func orUnset(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 16:
		return key[:8] + "..." + key[len(key)-4:]
	case len(key) > 4:
		return key[:4] + "..."
	}
	return "****"
}
