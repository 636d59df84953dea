// Package notify turns pushed row changes into cache patches or
// coalesced syncs.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/syncer"
)

// DefaultDebounce is the quiet period before a debounced kind is synced.
const DefaultDebounce = 400 * time.Millisecond

// Engine is the part of syncer.Engine the coalescer drives.
type Engine interface {
	Registry() *syncer.Registry
	ApplyPatch(ch model.Change) (model.Kind, cache.MergeStats, error)
	Request(kind model.Kind, d time.Duration)
	Owner(ch model.Change) string
}

// Stats counts what the coalescer did with the events it received.
type Stats struct {
	Received  uint64 `json:"received"`
	Foreign   uint64 `json:"foreign"`
	Patched   uint64 `json:"patched"`
	Debounced uint64 `json:"debounced"`
	Unknown   uint64 `json:"unknown"`
	Failed    uint64 `json:"failed"`
	Errors    uint64 `json:"channel_errors"`
}

// Coalescer routes change events for one principal.
type Coalescer struct {
	engine    Engine
	principal string
	debounce  time.Duration
	log       *slog.Logger

	received, foreign, patched, debounced, unknown, failed, errs atomic.Uint64
}

// New returns a coalescer feeding engine. A non-positive debounce uses
// DefaultDebounce.
func New(engine Engine, principal string, debounce time.Duration, log *slog.Logger) *Coalescer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coalescer{
		engine:    engine,
		principal: principal,
		debounce:  debounce,
		log:       log.With("component", "notify"),
	}
}

// Run consumes changes and errs until ctx is done or both channels are
// closed.
func (c *Coalescer) Run(ctx context.Context, changes <-chan model.Change, errs <-chan error) {
	for changes != nil || errs != nil {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			c.Handle(ch)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.errs.Add(1)
			c.log.Warn("change channel error", "error", err)
		}
	}
}

// Handle routes a single change.
func (c *Coalescer) Handle(ch model.Change) {
	c.received.Add(1)

	// An unknown owner is not foreign: key-only delete images carry no
	// user_id and cannot be filtered by the server.
	if owner := c.engine.Owner(ch); c.principal != "" && owner != "" && owner != c.principal {
		c.foreign.Add(1)
		return
	}

	h, ok := c.engine.Registry().ForTable(ch.Table)
	if !ok {
		c.unknown.Add(1)
		c.log.Debug("change for unknown table", "table", ch.Table)
		return
	}

	switch h.Mode {
	case syncer.Direct:
		_, st, err := c.engine.ApplyPatch(ch)
		if err != nil {
			c.failed.Add(1)
			if !errors.Is(err, syncer.ErrUnknownKind) {
				c.log.Warn("applying change failed, requesting sync", "table", ch.Table, "error", err)
				c.engine.Request(h.Kind, c.debounce)
			}
			return
		}
		c.patched.Add(1)
		c.log.Debug("change patched", "kind", h.Kind, "event", ch.EventType,
			"inserted", st.Inserted, "removed", st.Removed)
	default:
		c.debounced.Add(1)
		c.engine.Request(h.Kind, c.debounce)
	}
}

// Stats returns a snapshot of the counters.
func (c *Coalescer) Stats() Stats {
	return Stats{
		Received:  c.received.Load(),
		Foreign:   c.foreign.Load(),
		Patched:   c.patched.Load(),
		Debounced: c.debounced.Load(),
		Unknown:   c.unknown.Load(),
		Failed:    c.failed.Load(),
		Errors:    c.errs.Load(),
	}
}
