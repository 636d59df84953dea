package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/finsync/internal/cli"
	"github.com/theirongolddev/finsync/internal/daemon"
	"github.com/theirongolddev/finsync/internal/notify"
	"github.com/theirongolddev/finsync/internal/realtime"
	"github.com/theirongolddev/finsync/internal/refresh"
	"github.com/theirongolddev/finsync/internal/store"
	"github.com/theirongolddev/finsync/internal/syncer"
)

type daemonRuntimeState struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	CachePath string    `json:"cache_path,omitempty"`
}

var (
	flagDaemonAddr         string
	flagDaemonInterval     time.Duration
	flagDaemonDetach       bool
	flagDaemonPIDFile      string
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonNoRealtime   bool
	flagDaemonChild        bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep the cache in sync in the background and serve it over HTTP/SSE",
	RunE:  runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	defaultPID := filepath.Join(store.CacheDir(), "finsyncd.pid")
	defaultLog := filepath.Join(store.CacheDir(), "finsyncd.log")

	daemonCmd.PersistentFlags().StringVar(&flagDaemonAddr, "addr", "127.0.0.1:8787", "HTTP listen address")
	daemonCmd.PersistentFlags().DurationVar(&flagDaemonInterval, "interval", 0, "Polling interval (default: sync.poll_interval_sec)")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonPIDFile, "pid-file", defaultPID, "PID file path")
	daemonCmd.PersistentFlags().StringVar(&flagDaemonLogFile, "log-file", defaultLog, "Log file path for detached mode")
	daemonCmd.PersistentFlags().IntVar(&flagDaemonEventsBuffer, "events-buffer", 200, "Max in-memory events retained")

	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonNoRealtime, "no-realtime", false, "Poll only; do not subscribe to change notifications")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}

	if flagDaemonDetach {
		return startDaemonDetached()
	}

	return runDaemonForeground()
}

func startDaemonDetached() error {
	if err := ensureDaemonNotRunning(flagDaemonPIDFile); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := filterDetachArg(os.Args[1:])
	args = append(args, "--child")

	if err := os.MkdirAll(filepath.Dir(flagDaemonPIDFile), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}
	logf, err := openLogFile(flagDaemonLogFile)
	if err != nil {
		return err
	}
	defer func() { _ = logf.Close() }()

	cmd := exec.Command(exe, args...) //nolint:gosec // exe/args come from current process invocation
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.Stdin = nil
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	fmt.Printf("  Started daemon (pid %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", flagDaemonPIDFile)
	fmt.Printf("  API: http://%s/v1/status\n", flagDaemonAddr)
	fmt.Printf("  Log: %s\n", flagDaemonLogFile)
	return nil
}

// realtimeTables lists the distinct tables behind the registered kinds.
func realtimeTables(r *syncer.Registry) []string {
	seen := make(map[string]bool)
	var tables []string
	for _, k := range r.Kinds() {
		h, ok := r.Get(k)
		if !ok || seen[h.Table] {
			continue
		}
		seen[h.Table] = true
		tables = append(tables, h.Table)
	}
	return tables
}

func runDaemonForeground() error {
	if err := ensureDaemonNotRunning(flagDaemonPIDFile); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(flagDaemonPIDFile), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}

	return withSession(true, func(ctx context.Context, s *session) error {
		pid := os.Getpid()
		if err := writePID(flagDaemonPIDFile, pid); err != nil {
			return err
		}
		defer func() { _ = os.Remove(flagDaemonPIDFile) }()

		state := daemonRuntimeState{
			PID:       pid,
			Addr:      flagDaemonAddr,
			StartedAt: time.Now(),
			CachePath: flagCachePath,
		}
		_ = writeState(statePath(flagDaemonPIDFile), state)
		defer func() { _ = os.Remove(statePath(flagDaemonPIDFile)) }()

		interval := flagDaemonInterval
		if interval <= 0 {
			interval = s.cfg.Sync.PollInterval()
		}

		deps := daemon.Deps{
			Engine:    s.engine,
			Views:     s.views,
			Scheduler: refresh.New(s.engine, s.cfg.Sync.InactivityThreshold(), s.log),
			Store:     s.store,
			Logger:    s.log,
		}
		if s.cfg.Sync.Realtime && !flagDaemonNoRealtime {
			endpoint, err := realtime.Endpoint(s.cfg.Supabase.URL, s.cfg.Supabase.AnonKey)
			if err != nil {
				return err
			}
			deps.Channel = realtime.NewClient(realtime.Options{
				URL:         endpoint,
				AccessToken: s.cfg.Supabase.AccessToken,
				Principal:   s.principal,
				Tables:      realtimeTables(s.engine.Registry()),
				Logger:      s.log,
			})
			deps.Coalescer = notify.New(s.engine, s.principal, s.cfg.Sync.Debounce(), s.log)
		}

		svc := daemon.New(daemon.Config{
			Addr:          flagDaemonAddr,
			PollInterval:  interval,
			FlushInterval: s.cfg.Sync.FlushInterval(),
			EventsBuffer:  flagDaemonEventsBuffer,
			FullOnStart:   true,
			Hydrated:      true,
		}, deps)

		fmt.Printf("  finsync daemon listening on http://%s\n", flagDaemonAddr)
		fmt.Printf("  Polling %s every %s", s.cfg.Supabase.URL, interval)
		if deps.Channel != nil {
			fmt.Print(", realtime on")
		}
		fmt.Println()
		fmt.Printf("  Stop with: finsync daemon stop --pid-file %s\n", flagDaemonPIDFile)

		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	pid, err := readPID(flagDaemonPIDFile)
	if err != nil {
		fmt.Printf("  Daemon: not running (pid file not found)\n")
		return nil
	}

	alive := processAlive(pid)
	if !alive {
		fmt.Printf("  Daemon: stale pid file (pid %d not alive)\n", pid)
		return nil
	}

	addr := flagDaemonAddr
	if st, err := readState(statePath(flagDaemonPIDFile)); err == nil && st.Addr != "" {
		addr = st.Addr
	}

	fmt.Printf("  Daemon PID: %d\n", pid)
	fmt.Printf("  Address: http://%s\n", addr)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/v1/status") //nolint:noctx // short status probe
	if err != nil {
		fmt.Printf("  API status: unreachable (%v)\n", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("  API status: HTTP %d\n", resp.StatusCode)
		return nil
	}

	var st daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		fmt.Printf("  API status: malformed response (%v)\n", err)
		return nil
	}

	if st.LastPollAt.IsZero() {
		fmt.Printf("  Last poll: pending\n")
	} else {
		fmt.Printf("  Last poll: %s\n", cli.FormatAgo(st.LastPollAt))
	}
	fmt.Printf("  Poll count: %d\n", st.PollCount)
	if st.Inactive {
		fmt.Printf("  Polling: paused (inactive)\n")
	}
	total := 0
	for _, n := range st.Summary.Counts {
		total += n
	}
	fmt.Printf("  Records: %s\n", cli.FormatNumber(int64(total)))
	if st.Summary.NetWorth != "" {
		fmt.Printf("  Net worth: %s %s\n", st.Summary.NetWorth, st.Summary.Currency)
	}
	switch {
	case !st.Channel.Enabled:
		fmt.Printf("  Realtime: off\n")
	case st.Channel.Connected:
		fmt.Printf("  Realtime: connected\n")
	default:
		fmt.Printf("  Realtime: reconnecting\n")
	}
	if st.LastError != "" {
		fmt.Printf("  Last error: %s\n", st.LastError)
	}
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	pid, err := readPID(flagDaemonPIDFile)
	if err != nil {
		return errors.New("daemon is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon process: %w", err)
	}

	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			_ = os.Remove(flagDaemonPIDFile)
			_ = os.Remove(statePath(flagDaemonPIDFile))
			fmt.Printf("  Stopped daemon (pid %d)\n", pid)
			return nil
		}
		time.Sleep(150 * time.Millisecond)
	}

	return fmt.Errorf("daemon (pid %d) did not exit in time", pid)
}

func filterDetachArg(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func ensureDaemonNotRunning(pidFile string) error {
	pid, err := readPID(pidFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if processAlive(pid) {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	_ = os.Remove(pidFile)
	_ = os.Remove(statePath(pidFile))
	return nil
}

func writePID(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o600)
}

func readPID(path string) (int, error) {
	//nolint:gosec // daemon pid path is configured by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", path)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func statePath(pidFile string) string {
	return pidFile + ".json"
}

func writeState(path string, st daemonRuntimeState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func readState(path string) (daemonRuntimeState, error) {
	var st daemonRuntimeState
	//nolint:gosec // daemon state path is configured by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, err
	}
	return st, nil
}
