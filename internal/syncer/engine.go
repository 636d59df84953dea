// Package syncer keeps the local cache consistent with the remote system
// of record through cursor-based incremental fetches.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/delay"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/remote"
)

// Fetcher reads rows from the remote system of record.
type Fetcher interface {
	Fetch(ctx context.Context, table string, q remote.Query) ([]byte, error)
}

// Result describes one completed or deferred sync.
type Result struct {
	Kind        model.Kind    `json:"kind"`
	Incremental bool          `json:"incremental"`
	Deferred    bool          `json:"deferred,omitempty"`
	RetryIn     time.Duration `json:"retry_in,omitempty"`
	Fetched     int           `json:"fetched"`
	Upserted    int           `json:"upserted"`
	Removed     int           `json:"removed"`
	StartedAt   time.Time     `json:"started_at"`
	Took        time.Duration `json:"took"`

	// Data holds the decoded rows of the fetch ([]T for the kind).
	Data any `json:"-"`
}

// Options configures an Engine.
type Options struct {
	GuardWindow time.Duration
	Logger      *slog.Logger
	// OnSync observes every finished or failed sync.
	OnSync func(Result, error)
}

// KindStatus summarizes the sync state of one kind.
type KindStatus struct {
	Kind       model.Kind `json:"kind"`
	Mode       string     `json:"mode"`
	Records    int        `json:"records"`
	Cursor     time.Time  `json:"cursor,omitempty"`
	LastResult *Result    `json:"last_result,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	PendingAt  time.Time  `json:"pending_at,omitempty"`
	GuardLeft  string     `json:"guard_left,omitempty"`
}

// Engine fetches deltas and merges them into the cache.
type Engine struct {
	cache    *cache.Cache
	cursors  *CursorStore
	guard    *Guard
	fetcher  Fetcher
	registry *Registry
	delays   *delay.Queue
	log      *slog.Logger
	now      func() time.Time

	obsMu     sync.RWMutex
	observers []func(Result, error)

	sf singleflight.Group

	locksMu sync.Mutex
	locks   map[model.Kind]*sync.Mutex

	bgMu sync.RWMutex
	bg   context.Context

	statMu  sync.Mutex
	last    map[model.Kind]Result
	lastErr map[model.Kind]error
}

// New returns an engine over c that fetches through f.
func New(c *cache.Cache, f Fetcher, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		cache:    c,
		cursors:  NewCursorStore(),
		guard:    NewGuard(opts.GuardWindow),
		fetcher:  f,
		registry: NewRegistry(),
		delays:   delay.NewQueue(),
		log:      log,
		now:      time.Now,
		locks:    make(map[model.Kind]*sync.Mutex),
		bg:       context.Background(),
		last:     make(map[model.Kind]Result),
		lastErr:  make(map[model.Kind]error),
	}
	if opts.OnSync != nil {
		e.observers = append(e.observers, opts.OnSync)
	}
	return e
}

// Observe registers fn to be called after every finished or failed sync.
func (e *Engine) Observe(fn func(Result, error)) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, fn)
}

// Cache returns the cache the engine writes to.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Cursors returns the engine's cursor store.
func (e *Engine) Cursors() *CursorStore { return e.cursors }

// Guard returns the engine's mutation guard.
func (e *Engine) Guard() *Guard { return e.guard }

// Registry returns the handler registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Hydrate loads the persisted cache and cursors.
func (e *Engine) Hydrate(p cache.Persister) error {
	cursors, err := e.cache.Hydrate(p)
	if err != nil {
		return err
	}
	e.cursors.Load(cursors)
	e.log.Debug("cache hydrated", "version", e.cache.Version(), "cursors", len(cursors))
	return nil
}

// Flush persists the cache together with the cursors.
func (e *Engine) Flush(p cache.Persister) error {
	// Cursors first: persisted data may be newer than a cursor, never older.
	cursors := e.cursors.All()
	return e.cache.Flush(p, cursors)
}

// Start sets the context background syncs run under.
func (e *Engine) Start(ctx context.Context) {
	e.bgMu.Lock()
	e.bg = ctx
	e.bgMu.Unlock()
}

// Close cancels every pending background sync and waits for running ones.
func (e *Engine) Close() {
	e.delays.Stop()
}

func (e *Engine) background() context.Context {
	e.bgMu.RLock()
	defer e.bgMu.RUnlock()
	return e.bg
}

func slotKey(kind model.Kind) string { return "sync:" + string(kind) }

// Request schedules an incremental sync of kind after d. A newer request
// for the same kind supersedes a pending one.
func (e *Engine) Request(kind model.Kind, d time.Duration) {
	e.schedule(kind, nil, false, d)
}

func (e *Engine) schedule(kind model.Kind, filters remote.Filters, forceFull bool, d time.Duration) {
	e.delays.Schedule(slotKey(kind), d, func() {
		ctx := e.background()
		if ctx.Err() != nil {
			return
		}
		if _, err := e.Sync(ctx, kind, filters, forceFull); err != nil {
			e.log.Warn("background sync failed", "kind", kind, "error", err)
		}
	})
}

// Pending returns when a background sync of kind is due.
func (e *Engine) Pending(kind model.Kind) (time.Time, bool) {
	return e.delays.Pending(slotKey(kind))
}

// MarkMutated records a local write to kind.
func (e *Engine) MarkMutated(kind model.Kind) {
	e.guard.MarkMutated(kind)
}

// Sync brings kind up to date. Without a cursor, or with forceFull, the
// whole matching collection is fetched and replaces the local one;
// otherwise only rows changed since the cursor are merged. A kind inside
// its mutation guard window is deferred until the window ends.
func (e *Engine) Sync(ctx context.Context, kind model.Kind, filters remote.Filters, forceFull bool) (Result, error) {
	h, ok := e.registry.Get(kind)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	if left := e.guard.Remaining(kind); left > 0 {
		return e.deferSync(kind, filters, forceFull, left), nil
	}

	fs := append(append(remote.Filters{}, h.Filters...), filters...)
	key := CursorKey(kind, fs)
	flightKey := key
	if forceFull {
		flightKey += "#full"
	}

	v, err, shared := e.sf.Do(flightKey, func() (any, error) {
		return e.run(ctx, h, fs, key, forceFull)
	})
	if shared {
		e.log.Debug("sync joined in-flight request", "kind", kind)
	}
	res, _ := v.(Result)
	return res, err
}

func (e *Engine) deferSync(kind model.Kind, filters remote.Filters, forceFull bool, left time.Duration) Result {
	e.log.Debug("sync deferred by mutation guard", "kind", kind, "retry_in", left)
	e.schedule(kind, filters, forceFull, left)
	return Result{Kind: kind, Deferred: true, RetryIn: left}
}

func (e *Engine) lockFor(kind model.Kind) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu, ok := e.locks[kind]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[kind] = mu
	}
	return mu
}

func (e *Engine) run(ctx context.Context, h Handler, fs remote.Filters, key string, forceFull bool) (Result, error) {
	// Kinds sharing a collection share a lock, so a slow full fetch can
	// never land on top of a newer incremental one.
	mu := e.lockFor(h.Target)
	mu.Lock()
	defer mu.Unlock()

	start := e.now()
	since, hasCursor := e.cursors.Get(key)
	full := forceFull || !hasCursor

	q := remote.Query{Filters: fs}
	if !full {
		q.Since = &since
	}

	raw, err := e.fetcher.Fetch(ctx, h.Table, q)
	if err != nil {
		return e.finish(Result{Kind: h.Kind}, &FetchError{Kind: h.Kind, Full: full, Err: err})
	}

	// A local write that landed while the fetch was in flight may be
	// missing from the response.
	if left := e.guard.Remaining(h.Kind); left > 0 {
		return e.deferSync(h.Kind, fs[len(h.Filters):], forceFull, left), nil
	}

	data, n, st, err := h.merge(e.cache, raw, full, fs)
	if err != nil {
		return e.finish(Result{Kind: h.Kind}, &FetchError{Kind: h.Kind, Full: full, Err: err})
	}

	e.cursors.Advance(key, start)

	res := Result{
		Kind:        h.Kind,
		Incremental: !full,
		Fetched:     n,
		Upserted:    st.Upserted,
		Removed:     st.Removed,
		StartedAt:   start,
		Took:        e.now().Sub(start),
		Data:        data,
	}
	if h.Target == model.KindLedgerEntries {
		e.checkTransferPairs()
	}
	return e.finish(res, nil)
}

func (e *Engine) finish(res Result, err error) (Result, error) {
	e.statMu.Lock()
	if err != nil {
		e.lastErr[res.Kind] = err
	} else {
		kept := res
		kept.Data = nil
		e.last[res.Kind] = kept
		delete(e.lastErr, res.Kind)
	}
	e.statMu.Unlock()

	if err != nil {
		e.log.Warn("sync failed", "kind", res.Kind, "error", err)
	} else {
		e.log.Debug("sync done", "kind", res.Kind, "incremental", res.Incremental,
			"fetched", res.Fetched, "removed", res.Removed, "took", res.Took)
	}
	e.obsMu.RLock()
	obs := e.observers
	e.obsMu.RUnlock()
	for _, fn := range obs {
		fn(res, err)
	}
	return res, err
}

// checkTransferPairs logs transfer legs whose counterpart is missing.
// A half-present pair is normal right after an incremental merge.
func (e *Engine) checkTransferPairs() {
	if !e.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	legs := make(map[string]int)
	for _, en := range e.cache.Snapshot().Entries {
		if en.TransferID != "" {
			legs[en.TransferID]++
		}
	}
	for id, n := range legs {
		if n != 2 {
			e.log.Debug("transfer has unexpected leg count", "transfer_id", id, "legs", n)
		}
	}
}

// SyncAll syncs kinds concurrently. Failures are joined; successful kinds
// are still reported.
func (e *Engine) SyncAll(ctx context.Context, kinds []model.Kind, forceFull bool) (map[model.Kind]Result, error) {
	var (
		mu      sync.Mutex
		results = make(map[model.Kind]Result, len(kinds))
		errs    []error
		g       errgroup.Group
	)
	for _, kind := range kinds {
		g.Go(func() error {
			res, err := e.Sync(ctx, kind, nil, forceFull)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			results[kind] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// ApplyPatch writes a pushed row change straight into the cache.
func (e *Engine) ApplyPatch(ch model.Change) (model.Kind, cache.MergeStats, error) {
	h, ok := e.registry.ForTable(ch.Table)
	if !ok {
		return "", cache.MergeStats{}, fmt.Errorf("%w: table %s", ErrUnknownKind, ch.Table)
	}
	st, err := h.patch(e.cache, ch)
	return h.Kind, st, err
}

// Owner returns the user_id a pushed change belongs to. When the image
// omits user_id, the cached row it refers to is consulted. An empty result
// means the owner is unknown.
func (e *Engine) Owner(ch model.Change) string {
	if owner := ch.Owner(); owner != "" {
		return owner
	}
	h, ok := e.registry.ForTable(ch.Table)
	if !ok {
		return ""
	}
	return h.owner(e.cache, ch)
}

// Status reports the sync state of every kind.
func (e *Engine) Status() []KindStatus {
	snap := e.cache.Snapshot()
	kinds := e.registry.Kinds()

	e.statMu.Lock()
	defer e.statMu.Unlock()

	out := make([]KindStatus, 0, len(kinds))
	for _, kind := range kinds {
		h, _ := e.registry.Get(kind)
		st := KindStatus{Kind: kind, Mode: h.Mode.String(), Records: snap.Count(kind)}
		if ts, ok := e.cursors.Get(CursorKey(kind, h.Filters)); ok {
			st.Cursor = ts
		}
		if r, ok := e.last[kind]; ok {
			st.LastResult = &r
		}
		if err, ok := e.lastErr[kind]; ok {
			st.LastError = err.Error()
		}
		if due, ok := e.Pending(kind); ok {
			st.PendingAt = due
		}
		if left := e.guard.Remaining(kind); left > 0 {
			st.GuardLeft = left.String()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}
