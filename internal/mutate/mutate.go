// Package mutate applies local writes optimistically: the cache changes
// first, then the remote write is issued and reverted on failure.
package mutate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/syncer"
)

// ErrNotFound is returned when deleting a record that is not cached.
var ErrNotFound = errors.New("record not found")

// Remote is the write side of the remote system of record.
type Remote interface {
	Upsert(ctx context.Context, table string, row any) error
	SoftDelete(ctx context.Context, table, id string, at time.Time) error
}

// Marker records local writes so that fetches racing them are deferred.
type Marker interface {
	MarkMutated(kind model.Kind)
}

// Mutator performs local writes for one principal.
type Mutator struct {
	cache     *cache.Cache
	remote    Remote
	marker    Marker
	registry  *syncer.Registry
	principal string
	log       *slog.Logger
	now       func() time.Time
}

// New returns a mutator writing to c and r.
func New(c *cache.Cache, r Remote, m Marker, reg *syncer.Registry, principal string, log *slog.Logger) *Mutator {
	if log == nil {
		log = slog.Default()
	}
	return &Mutator{
		cache:     c,
		remote:    r,
		marker:    m,
		registry:  reg,
		principal: principal,
		log:       log.With("component", "mutate"),
		now:       time.Now,
	}
}

// row is a record whose bookkeeping columns can be edited in place.
type row[T any] interface {
	*T
	Base() *model.Meta
}

// Save creates or updates rec of kind. A record without an ID gets a new
// one. The stored record is returned.
func Save[T model.Record, P row[T]](ctx context.Context, m *Mutator, kind model.Kind, rec T) (T, error) {
	h, err := m.handler(kind)
	if err != nil {
		return rec, err
	}
	meta := P(&rec).Base()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.UserID == "" {
		meta.UserID = m.principal
	}
	meta.DeletedAt = nil
	meta.Touch(m.now())

	coll := h.Target
	key := keyOf(rec, meta)
	prev, had, err := cache.Lookup[T](m.cache, coll, key)
	if err != nil {
		return rec, err
	}
	// Mark before writing so a fetch that has not yet merged sees the guard.
	m.mark(coll)
	if _, err := cache.Put(m.cache, coll, rec); err != nil {
		return rec, err
	}

	if err := m.remote.Upsert(ctx, h.Table, rec); err != nil {
		revert(m, coll, key, prev, had)
		return rec, fmt.Errorf("saving %s %s: %w", kind, meta.ID, err)
	}
	m.log.Debug("record saved", "kind", kind, "id", meta.ID)
	return rec, nil
}

// Delete soft-deletes the record of kind stored under key. Settings are
// keyed by their setting key, everything else by ID.
func Delete[T model.Record, P row[T]](ctx context.Context, m *Mutator, kind model.Kind, key string) error {
	h, err := m.handler(kind)
	if err != nil {
		return err
	}
	coll := h.Target
	prev, had, err := cache.Lookup[T](m.cache, coll, key)
	if err != nil {
		return err
	}
	if !had {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, key)
	}

	now := m.now().UTC()
	gone := prev
	meta := P(&gone).Base()
	meta.DeletedAt = &now
	meta.Touch(now)
	m.mark(coll)
	if _, err := cache.Put(m.cache, coll, gone); err != nil {
		return err
	}

	if err := m.remote.SoftDelete(ctx, h.Table, meta.ID, now); err != nil {
		revert(m, coll, key, prev, true)
		return fmt.Errorf("deleting %s %s: %w", kind, key, err)
	}
	m.log.Debug("record deleted", "kind", kind, "id", meta.ID)
	return nil
}

func (m *Mutator) handler(kind model.Kind) (syncer.Handler, error) {
	h, ok := m.registry.Get(kind)
	if !ok {
		return syncer.Handler{}, fmt.Errorf("%w: %s", syncer.ErrUnknownKind, kind)
	}
	return h, nil
}

// mark guards every kind that syncs into the target collection.
func (m *Mutator) mark(target model.Kind) {
	for _, kind := range m.registry.Kinds() {
		if h, _ := m.registry.Get(kind); h.Target == target {
			m.marker.MarkMutated(kind)
		}
	}
}

// revert restores the cached record that a failed remote write replaced.
func revert[T model.Record](m *Mutator, coll model.Kind, key string, prev T, had bool) {
	var err error
	if had {
		_, err = cache.Put(m.cache, coll, prev)
	} else {
		_, err = cache.Delete[T](m.cache, coll, key)
	}
	if err != nil {
		m.log.Error("reverting local write failed", "kind", coll, "key", key, "error", err)
	}
}

func keyOf(rec any, meta *model.Meta) string {
	if s, ok := rec.(model.Setting); ok {
		return s.Key
	}
	return meta.ID
}
