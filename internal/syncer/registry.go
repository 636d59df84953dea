package syncer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/remote"
)

// NotifyMode tells the notification coalescer how to react to a change.
type NotifyMode int

const (
	// Debounced kinds depend on server-side effects; changes trigger a
	// coalesced refetch.
	Debounced NotifyMode = iota
	// Direct kinds are small and addressable; changes patch the cache.
	Direct
)

func (m NotifyMode) String() string {
	if m == Direct {
		return "direct"
	}
	return "debounced"
}

type mergeFunc func(c *cache.Cache, raw []byte, full bool, fs remote.Filters) (any, int, cache.MergeStats, error)
type patchFunc func(c *cache.Cache, ch model.Change) (cache.MergeStats, error)
type ownerFunc func(c *cache.Cache, ch model.Change) string

// Handler binds one entity kind to its table, target collection and typed
// merge and patch operations.
type Handler struct {
	Kind    model.Kind
	Table   string
	Target  model.Kind
	Filters remote.Filters
	Mode    NotifyMode

	merge mergeFunc
	patch patchFunc
	owner ownerFunc
}

// Registry maps entity kinds to their handlers.
type Registry struct {
	byKind  map[model.Kind]Handler
	byTable map[string]model.Kind
}

// NewRegistry returns the handlers for every synchronized kind.
func NewRegistry() *Registry {
	r := &Registry{
		byKind:  make(map[model.Kind]Handler),
		byTable: make(map[string]model.Kind),
	}
	id := func(m model.Meta) string { return m.ID }

	register(r, Handler{Kind: model.KindLedgerEntries, Table: "ledger_entries", Mode: Debounced},
		func(e model.LedgerEntry) string { return id(e.Meta) })
	register(r, Handler{
		Kind:    model.KindTransfers,
		Table:   "ledger_entries",
		Target:  model.KindLedgerEntries,
		Filters: remote.Filters{{Column: "transfer_id", Op: remote.OpNotIs, Value: "null"}},
		Mode:    Debounced,
	}, func(e model.LedgerEntry) string { return id(e.Meta) })
	register(r, Handler{Kind: model.KindAccounts, Table: "accounts", Mode: Direct},
		func(a model.Account) string { return id(a.Meta) })
	register(r, Handler{Kind: model.KindCategories, Table: "categories", Mode: Direct},
		func(c model.Category) string { return id(c.Meta) })
	register(r, Handler{Kind: model.KindBudgets, Table: "budgets", Mode: Direct},
		func(b model.Budget) string { return id(b.Meta) })
	register(r, Handler{Kind: model.KindBorrowLend, Table: "borrow_lend", Mode: Direct},
		func(b model.BorrowLend) string { return id(b.Meta) })
	register(r, Handler{Kind: model.KindSettings, Table: "settings", Mode: Direct},
		func(s model.Setting) string { return s.Key })
	register(r, Handler{Kind: model.KindExchangeRates, Table: "exchange_rates", Mode: Direct},
		func(x model.ExchangeRate) string { return id(x.Meta) })
	return r
}

func register[T model.Record](r *Registry, h Handler, keyOf func(T) string) {
	if h.Target == "" {
		h.Target = h.Kind
	}
	target := h.Target

	h.merge = func(c *cache.Cache, raw []byte, full bool, fs remote.Filters) (any, int, cache.MergeStats, error) {
		var recs []T
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, 0, cache.MergeStats{}, fmt.Errorf("decoding %s rows: %w", h.Kind, err)
		}
		var (
			st  cache.MergeStats
			err error
		)
		if full {
			var keep func(T) bool
			if len(fs) > 0 {
				keep = func(rec T) bool { return matches(rec, fs) }
			}
			st, err = cache.Replace(c, target, recs, keep)
		} else {
			st, err = cache.Merge(c, target, recs)
		}
		return recs, len(recs), st, err
	}

	// locate finds the cached row an image refers to. Delete images may
	// carry only the primary key, so a missing merge key falls back to id.
	locate := func(c *cache.Cache, rec T) (T, bool, error) {
		if key := keyOf(rec); key != "" {
			return cache.Lookup[T](c, target, key)
		}
		id := rec.RowID()
		if id == "" {
			var zero T
			return zero, false, nil
		}
		return cache.Find(c, target, func(x T) bool { return x.RowID() == id })
	}

	h.patch = func(c *cache.Cache, ch model.Change) (cache.MergeStats, error) {
		var rec T
		if err := json.Unmarshal(ch.Row(), &rec); err != nil {
			return cache.MergeStats{}, fmt.Errorf("decoding %s change: %w", h.Kind, err)
		}
		if ch.EventType == model.EventDelete {
			cached, ok, err := locate(c, rec)
			if err != nil || !ok {
				return cache.MergeStats{}, err
			}
			removed, err := cache.Delete[T](c, target, keyOf(cached))
			if removed {
				return cache.MergeStats{Removed: 1}, err
			}
			return cache.MergeStats{}, err
		}
		return cache.PutIfNewer(c, target, rec)
	}

	h.owner = func(c *cache.Cache, ch model.Change) string {
		var rec T
		if err := json.Unmarshal(ch.Row(), &rec); err != nil {
			return ""
		}
		if owner := rec.Owner(); owner != "" {
			return owner
		}
		if cached, ok, _ := locate(c, rec); ok {
			return cached.Owner()
		}
		return ""
	}

	r.byKind[h.Kind] = h
	if h.Target == h.Kind {
		r.byTable[h.Table] = h.Kind
	}
}

// Get returns the handler for kind.
func (r *Registry) Get(kind model.Kind) (Handler, bool) {
	h, ok := r.byKind[kind]
	return h, ok
}

// ForTable returns the handler that owns table.
func (r *Registry) ForTable(table string) (Handler, bool) {
	kind, ok := r.byTable[table]
	if !ok {
		return Handler{}, false
	}
	return r.Get(kind)
}

// Kinds returns every registered kind, sorted.
func (r *Registry) Kinds() []model.Kind {
	out := make([]model.Kind, 0, len(r.byKind))
	for k := range r.byKind {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// matches evaluates fs against rec's JSON form. It supports the operators
// the engine issues; anything else is treated as matching.
func matches(rec any, fs remote.Filters) bool {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return false
	}
	for _, f := range fs {
		v, present := row[f.Column]
		isNull := !present || v == nil || v == ""
		str := fmt.Sprint(v)
		switch f.Op {
		case remote.OpEq:
			if isNull || str != f.Value {
				return false
			}
		case remote.OpNeq:
			if !isNull && str == f.Value {
				return false
			}
		case remote.OpIs:
			if f.Value == "null" && !isNull {
				return false
			}
		case remote.OpNotIs:
			if f.Value == "null" && isNull {
				return false
			}
		case remote.OpGte:
			if isNull || str < f.Value {
				return false
			}
		case remote.OpLte:
			if isNull || str > f.Value {
				return false
			}
		}
	}
	return true
}
