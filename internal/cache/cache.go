// Package cache holds the client-resident copy of every synchronized
// collection. Writers are atomic with respect to snapshot readers.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/theirongolddev/finsync/internal/model"
)

// ErrKindMismatch is returned when a write names a kind whose collection
// holds a different record type.
var ErrKindMismatch = errors.New("cache: record type does not match kind")

// State is the durable form of the cache plus the sync cursors that
// describe it.
type State struct {
	Collections map[model.Kind][]byte
	Cursors     map[string]time.Time
}

// Persister stores and restores cache state.
type Persister interface {
	LoadState() (State, error)
	SaveState(State) error
}

type table interface {
	json.Marshaler
	json.Unmarshaler
	Len() int
}

// Cache is the in-memory store of all entity collections.
type Cache struct {
	mu      sync.RWMutex
	version uint64
	flushed uint64
	snap    *Snapshot

	entries    *Collection[model.LedgerEntry]
	accounts   *Collection[model.Account]
	categories *Collection[model.Category]
	budgets    *Collection[model.Budget]
	borrowLend *Collection[model.BorrowLend]
	settings   *Collection[model.Setting]
	rates      *Collection[model.ExchangeRate]

	tables map[model.Kind]table

	watchMu   sync.Mutex
	nextWatch int
	watchers  map[int]chan uint64
}

// New returns an empty cache.
func New() *Cache {
	c := &Cache{
		entries:    NewCollection(func(r model.LedgerEntry) string { return r.ID }),
		accounts:   NewCollection(func(r model.Account) string { return r.ID }),
		categories: NewCollection(func(r model.Category) string { return r.ID }),
		budgets:    NewCollection(func(r model.Budget) string { return r.ID }),
		borrowLend: NewCollection(func(r model.BorrowLend) string { return r.ID }),
		settings:   NewCollection(func(r model.Setting) string { return r.Key }),
		rates:      NewCollection(func(r model.ExchangeRate) string { return r.ID }),
		watchers:   make(map[int]chan uint64),
	}
	c.tables = map[model.Kind]table{
		model.KindLedgerEntries: c.entries,
		// Transfers are ledger entries that carry a transfer_id.
		model.KindTransfers:     c.entries,
		model.KindAccounts:      c.accounts,
		model.KindCategories:    c.categories,
		model.KindBudgets:       c.budgets,
		model.KindBorrowLend:    c.borrowLend,
		model.KindSettings:      c.settings,
		model.KindExchangeRates: c.rates,
	}
	return c
}

// Version increases on every write.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Count returns the number of visible records of kind.
func (c *Cache) Count(kind model.Kind) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.tables[kind]; ok {
		return t.Len()
	}
	return 0
}

// persisted lists the kinds that own a collection; aliases are skipped.
func persisted() []model.Kind {
	var out []model.Kind
	for _, k := range model.AllKinds() {
		if k != model.KindTransfers {
			out = append(out, k)
		}
	}
	return out
}

// Hydrate replaces the cache contents with the persisted state and returns
// the cursors saved alongside it.
func (c *Cache) Hydrate(p Persister) (map[string]time.Time, error) {
	st, err := p.LoadState()
	if err != nil {
		return nil, fmt.Errorf("loading cache state: %w", err)
	}

	c.mu.Lock()
	for _, kind := range persisted() {
		blob, ok := st.Collections[kind]
		if !ok || len(blob) == 0 {
			continue
		}
		if err := c.tables[kind].UnmarshalJSON(blob); err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("decoding %s: %w", kind, err)
		}
	}
	c.bumpLocked()
	c.flushed = c.version
	v := c.version
	c.mu.Unlock()

	c.notify(v)
	return st.Cursors, nil
}

// Flush writes every collection and the given cursors in one atomic save.
// Callers must capture cursors before calling Flush so a cursor never
// describes data newer than what is persisted.
func (c *Cache) Flush(p Persister, cursors map[string]time.Time) error {
	c.mu.RLock()
	st := State{
		Collections: make(map[model.Kind][]byte),
		Cursors:     cursors,
	}
	for _, kind := range persisted() {
		blob, err := c.tables[kind].MarshalJSON()
		if err != nil {
			c.mu.RUnlock()
			return fmt.Errorf("encoding %s: %w", kind, err)
		}
		st.Collections[kind] = blob
	}
	v := c.version
	c.mu.RUnlock()

	if err := p.SaveState(st); err != nil {
		return fmt.Errorf("saving cache state: %w", err)
	}

	c.mu.Lock()
	if v > c.flushed {
		c.flushed = v
	}
	c.mu.Unlock()
	return nil
}

// Dirty reports whether writes happened since the last flush or hydrate.
func (c *Cache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version != c.flushed
}

func (c *Cache) bumpLocked() {
	c.version++
	c.snap = nil
}

// Watch returns a channel that receives the cache version after writes.
// Deliveries coalesce; a slow reader only sees the latest version.
func (c *Cache) Watch() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)
	c.watchMu.Lock()
	c.nextWatch++
	id := c.nextWatch
	c.watchers[id] = ch
	c.watchMu.Unlock()

	return ch, func() {
		c.watchMu.Lock()
		delete(c.watchers, id)
		c.watchMu.Unlock()
	}
}

func (c *Cache) notify(v uint64) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for _, ch := range c.watchers {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}
