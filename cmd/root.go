// Package cmd implements the finsync CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/finsync/internal/aggregate"
	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/config"
	"github.com/theirongolddev/finsync/internal/mutate"
	"github.com/theirongolddev/finsync/internal/remote"
	"github.com/theirongolddev/finsync/internal/store"
	"github.com/theirongolddev/finsync/internal/syncer"
)

var (
	flagConfig    string
	flagCachePath string
	flagOffline   bool
	flagVerbose   bool
	flagQuiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "finsync",
	Short: "Local-first sync and reporting for your finance data",
	Long: "Keep a local copy of your Supabase finance data in sync and report\n" +
		"balances, budgets, transfers and conversions from it.",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	RunE:              runBalances,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&flagCachePath, "cache", "", "Cache database path (default "+store.CachePath()+")")
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "Read the local cache without contacting the server")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging on stderr")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Only log warnings and errors")
}

func logLevel() slog.Level {
	switch {
	case flagVerbose:
		return slog.LevelDebug
	case flagQuiet:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func setupLogging(_ *cobra.Command, _ []string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()})))
	return nil
}

// openLogFile opens path for appending, creating its directory.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	//nolint:gosec // log path is configured by the local user
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func loadConfig() (config.Config, error) {
	if flagConfig != "" {
		return config.LoadFile(flagConfig)
	}
	return config.Load()
}

// offlineFetcher stands in for the remote when it is unconfigured or
// --offline is set.
type offlineFetcher struct{ err error }

func (f offlineFetcher) Fetch(context.Context, string, remote.Query) ([]byte, error) {
	return nil, f.err
}

// session is the engine and its collaborators for one command.
type session struct {
	cfg       config.Config
	log       *slog.Logger
	principal string
	remote    *remote.Client
	store     *store.DB
	engine    *syncer.Engine
	views     *aggregate.Views
	mutator   *mutate.Mutator
}

// openSession hydrates the cache from disk and connects to the remote
// unless offline. needRemote turns a missing configuration into an error.
func openSession(needRemote bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: slog.Default()}

	var fetcher syncer.Fetcher = offlineFetcher{err: config.ErrNotConfigured}
	if !flagOffline {
		switch err := cfg.Validate(); {
		case err == nil:
			s.principal, err = remote.ResolvePrincipal(cfg.Supabase.UserID, cfg.Supabase.AccessToken)
			if err != nil {
				return nil, err
			}
			s.remote, err = remote.NewClient(remote.Options{
				URL:         cfg.Supabase.URL,
				Key:         cfg.Supabase.AnonKey,
				AccessToken: cfg.Supabase.AccessToken,
				Principal:   s.principal,
				Logger:      s.log,
			})
			if err != nil {
				return nil, err
			}
			fetcher = s.remote
		case needRemote:
			return nil, fmt.Errorf("%w; run `finsync setup`", err)
		}
	} else if needRemote {
		return nil, errors.New("this command needs the server; drop --offline")
	}

	path := flagCachePath
	if path == "" {
		path = cfg.General.CachePath
	}
	if path == "" {
		path = store.CachePath()
	}
	s.store, err = store.Open(path)
	if err != nil {
		return nil, err
	}

	c := cache.New()
	s.engine = syncer.New(c, fetcher, syncer.Options{
		GuardWindow: cfg.Sync.GuardWindow(),
		Logger:      s.log,
	})
	if err := s.engine.Hydrate(s.store); err != nil {
		s.log.Warn("cache unreadable, starting empty", "path", path, "err", err)
	}
	s.views = aggregate.NewViews(c, cfg.General.BaseCurrency)
	if s.remote != nil {
		s.mutator = mutate.New(c, s.remote, s.engine, s.engine.Registry(), s.principal, s.log)
	}
	return s, nil
}

// online reports whether the session can reach the server.
func (s *session) online() bool { return s.remote != nil }

// refresh runs an incremental sync of every kind when online. Failures
// are logged; callers report from whatever the cache holds.
func (s *session) refresh(ctx context.Context) {
	if !s.online() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if _, err := s.engine.SyncAll(ctx, s.engine.Registry().Kinds(), false); err != nil {
		s.log.Warn("refresh failed, showing cached data", "err", err)
	}
}

// Close persists the cache and releases the database.
func (s *session) Close() error {
	defer s.engine.Close()
	var errs []error
	if s.online() || s.engine.Cache().Dirty() {
		if err := s.engine.Flush(s.store); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withSession runs fn against an open session and always closes it.
func withSession(needRemote bool, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(needRemote)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	runErr := fn(ctx, s)
	if err := s.Close(); err != nil {
		s.log.Error("closing session", "err", err)
	}
	return runErr
}
