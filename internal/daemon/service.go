// Package daemon provides the long-running sync service and its HTTP API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/theirongolddev/finsync/internal/aggregate"
	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/notify"
	"github.com/theirongolddev/finsync/internal/refresh"
	"github.com/theirongolddev/finsync/internal/syncer"
)

// Config controls the daemon runtime behavior.
type Config struct {
	Addr          string
	PollInterval  time.Duration
	FlushInterval time.Duration
	EventsBuffer  int
	// FullOnStart forces a full fetch of every kind after hydration.
	FullOnStart bool
	// Hydrated means the engine was already loaded from Store.
	Hydrated bool
}

// Channel is a push change feed such as realtime.Client.
type Channel interface {
	Run(ctx context.Context) error
	Changes() <-chan model.Change
	Errors() <-chan error
	Connected() bool
}

// Deps are the components the service runs.
type Deps struct {
	Engine    *syncer.Engine
	Views     *aggregate.Views
	Scheduler *refresh.Scheduler
	Store     cache.Persister
	// Channel and Coalescer are optional; without them the service only
	// polls.
	Channel   Channel
	Coalescer *notify.Coalescer
	Logger    *slog.Logger
}

// Snapshot is a compact cache state for status/event payloads.
type Snapshot struct {
	At       time.Time          `json:"at"`
	Version  uint64             `json:"version"`
	Counts   map[model.Kind]int `json:"counts"`
	NetWorth string             `json:"net_worth,omitempty"`
	Currency string             `json:"currency,omitempty"`
}

// Delta captures per-kind record count changes between snapshots.
type Delta map[model.Kind]int

func (d Delta) isZero() bool {
	for _, n := range d {
		if n != 0 {
			return false
		}
	}
	return true
}

// Event is emitted when the cache changes or a sync finishes.
type Event struct {
	ID        int64          `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      model.Kind     `json:"kind,omitempty"`
	State     string         `json:"state,omitempty"`
	Result    *syncer.Result `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Snapshot  *Snapshot      `json:"snapshot,omitempty"`
	Delta     Delta          `json:"delta,omitempty"`
}

// Event types.
const (
	EventSnapshot  = "snapshot"
	EventChange    = "cache_delta"
	EventSync      = "sync"
	EventSyncError = "sync_error"
	EventLifecycle = "lifecycle"
)

// ChannelStatus reports the push channel.
type ChannelStatus struct {
	Enabled   bool          `json:"enabled"`
	Connected bool          `json:"connected"`
	Stats     *notify.Stats `json:"stats,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time           `json:"started_at"`
	LastPollAt      time.Time           `json:"last_poll_at"`
	LastFlushAt     time.Time           `json:"last_flush_at"`
	PollIntervalSec int                 `json:"poll_interval_sec"`
	PollCount       int64               `json:"poll_count"`
	Inactive        bool                `json:"inactive"`
	Summary         Snapshot            `json:"summary"`
	Kinds           []syncer.KindStatus `json:"kinds"`
	Channel         ChannelStatus       `json:"channel"`
	LastError       string              `json:"last_error,omitempty"`
	EventCount      int                 `json:"event_count"`
	SubscriberCount int                 `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	lastFlushAt time.Time
	pollCount   int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	nextEventID int64
	events      []Event

	flushedGen uint64

	nextSubID int
	subs      map[int]chan Event
}

// New returns a new daemon service with the provided config.
func New(cfg Config, deps Deps) *Service {
	if cfg.PollInterval < 2*time.Second {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 15 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg:       cfg,
		deps:      deps,
		log:       log.With("component", "daemon"),
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
	deps.Engine.Observe(s.recordSync)
	return s
}

// Run hydrates the cache, starts HTTP endpoints, the change feed and
// polling until ctx is canceled. The cache is flushed on the way out.
func (s *Service) Run(ctx context.Context) error {
	eng := s.deps.Engine
	if s.deps.Store != nil && !s.cfg.Hydrated {
		if err := eng.Hydrate(s.deps.Store); err != nil {
			s.log.Warn("hydrating cache failed, starting empty", "error", err)
		}
	}
	s.flushedGen = eng.Cursors().Gen()
	eng.Start(ctx)
	defer eng.Close()

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var wg sync.WaitGroup
	if ch := s.deps.Channel; ch != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ch.Run(ctx)
		}()
		if co := s.deps.Coalescer; co != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				co.Run(ctx, ch.Changes(), ch.Errors())
			}()
		}
	}

	watch, stopWatch := eng.Cache().Watch()
	defer stopWatch()

	// Seed initial snapshot so status is useful immediately.
	s.observe()
	s.pollOnce(ctx, s.cfg.FullOnStart)

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	flush := time.NewTicker(s.cfg.FlushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := server.Shutdown(shutdownCtx)
			wg.Wait()
			s.flush()
			return err
		case <-poll.C:
			if s.deps.Scheduler != nil && s.deps.Scheduler.Inactive() {
				continue
			}
			s.pollOnce(ctx, false)
		case <-flush.C:
			s.flush()
		case <-watch:
			s.observe()
		case err := <-errCh:
			s.flush()
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context, full bool) {
	_, err := s.deps.Engine.SyncAll(ctx, model.AllKinds(), full)

	s.mu.Lock()
	s.lastPollAt = time.Now()
	s.pollCount++
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("poll failed", "error", err)
	}
}

// flush persists the cache when data or cursors changed since the last
// flush.
func (s *Service) flush() {
	if s.deps.Store == nil {
		return
	}
	eng := s.deps.Engine
	gen := eng.Cursors().Gen()
	if !eng.Cache().Dirty() && gen == s.flushedGen {
		return
	}
	if err := eng.Flush(s.deps.Store); err != nil {
		s.log.Error("flushing cache failed", "error", err)
		return
	}
	s.flushedGen = gen

	s.mu.Lock()
	s.lastFlushAt = time.Now()
	s.mu.Unlock()
	s.log.Debug("cache flushed", "version", eng.Cache().Version())
}

// observe compares the cache with the last published snapshot and emits
// an event when record counts moved.
func (s *Service) observe() {
	snap := s.takeSnapshot()

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot
	s.hasSnapshot = true
	s.snapshot = snap

	if !prevExists {
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: EventSnapshot, Timestamp: snap.At, Snapshot: &snap}
		publish = true
	} else if snap.Version != prev.Version {
		delta := diffSnapshots(prev, snap)
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: EventChange, Timestamp: snap.At, Snapshot: &snap}
		if !delta.isZero() {
			ev.Delta = delta
		}
		publish = true
	}
	s.mu.Unlock()

	if publish {
		s.publishEvent(ev)
	}
}

func (s *Service) takeSnapshot() Snapshot {
	c := s.deps.Engine.Cache().Snapshot()
	snap := Snapshot{
		At:      time.Now(),
		Version: c.Version,
		Counts:  make(map[model.Kind]int),
	}
	for _, kind := range model.AllKinds() {
		snap.Counts[kind] = c.Count(kind)
	}
	if v := s.deps.Views; v != nil {
		nw := v.NetWorth("")
		snap.NetWorth = nw.Total.StringFixed(2)
		snap.Currency = nw.Currency
	}
	return snap
}

func diffSnapshots(prev, curr Snapshot) Delta {
	d := make(Delta)
	for kind, n := range curr.Counts {
		if diff := n - prev.Counts[kind]; diff != 0 {
			d[kind] = diff
		}
	}
	for kind, n := range prev.Counts {
		if _, ok := curr.Counts[kind]; !ok && n != 0 {
			d[kind] = -n
		}
	}
	return d
}

func (s *Service) recordSync(res syncer.Result, err error) {
	ev := Event{Type: EventSync, Timestamp: time.Now(), Kind: res.Kind}
	if err != nil {
		ev.Type = EventSyncError
		ev.Error = err.Error()
	} else {
		r := res
		r.Data = nil
		ev.Result = &r
	}
	s.mu.Lock()
	s.nextEventID++
	ev.ID = s.nextEventID
	s.mu.Unlock()
	s.publishEvent(ev)
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

// SetActive forwards a foreground/background transition to the refresh
// scheduler and returns the kinds it planned.
func (s *Service) SetActive(active bool) []model.Kind {
	sch := s.deps.Scheduler
	if sch == nil {
		return nil
	}
	var plan []model.Kind
	if active {
		plan = sch.BecameActive()
	} else {
		sch.BecameInactive()
	}

	s.mu.Lock()
	s.nextEventID++
	ev := Event{ID: s.nextEventID, Type: EventLifecycle, Timestamp: time.Now()}
	if active {
		ev.State = "active"
	} else {
		ev.State = "inactive"
	}
	s.mu.Unlock()
	s.publishEvent(ev)
	return plan
}

func (s *Service) snapshotStatus() Status {
	kinds := s.deps.Engine.Status()
	ch := ChannelStatus{Enabled: s.deps.Channel != nil}
	if s.deps.Channel != nil {
		ch.Connected = s.deps.Channel.Connected()
	}
	if s.deps.Coalescer != nil {
		st := s.deps.Coalescer.Stats()
		ch.Stats = &st
	}
	inactive := s.deps.Scheduler != nil && s.deps.Scheduler.Inactive()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		LastFlushAt:     s.lastFlushAt,
		PollIntervalSec: int(s.cfg.PollInterval.Seconds()),
		PollCount:       s.pollCount,
		Inactive:        inactive,
		Summary:         s.snapshot,
		Kinds:           kinds,
		Channel:         ch,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
