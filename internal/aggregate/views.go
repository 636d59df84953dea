package aggregate

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
)

type rollupKey struct {
	category string
	month    model.Month
}

// Views serves derived values for the current cache contents. Results are
// memoized until the cache version changes.
type Views struct {
	cache *cache.Cache
	base  string

	mu        sync.Mutex
	version   uint64
	ix        *index
	rollups   map[rollupKey]BudgetRollup
	roots     map[model.Month][]BudgetRollup
	transfers *TransferSet
}

// NewViews returns views over c. base is the reporting currency used when
// no base_currency setting is cached.
func NewViews(c *cache.Cache, base string) *Views {
	return &Views{cache: c, base: norm(base)}
}

// current returns the index for the latest snapshot. Callers hold v.mu.
func (v *Views) current() *index {
	snap := v.cache.Snapshot()
	if v.ix == nil || snap.Version != v.version {
		v.ix = newIndex(snap, v.base)
		v.version = snap.Version
		v.rollups = make(map[rollupKey]BudgetRollup)
		v.roots = make(map[model.Month][]BudgetRollup)
		v.transfers = nil
	}
	return v.ix
}

// Version returns the cache version the memoized values were computed at.
func (v *Views) Version() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current()
	return v.version
}

// BaseCurrency returns the reporting currency in effect.
func (v *Views) BaseCurrency() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current().base
}

// AccountBalance returns the derived balance of accountID.
func (v *Views) AccountBalance(accountID string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	bal, err := v.current().balance(accountID)
	if err != nil {
		return bal, fmt.Errorf("%w: %s", err, accountID)
	}
	return bal, nil
}

// Balances returns every live account's balance.
func (v *Views) Balances() []Balance {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current().allBalances()
}

// Convert converts amount between currencies; ok is false when no rate
// is cached in either direction.
func (v *Views) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current().rates.Convert(amount, from, to)
}

// EffectiveBudget returns the budget rollup for a category and month.
func (v *Views) EffectiveBudget(categoryID string, month model.Month) (BudgetRollup, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ix := v.current()
	k := rollupKey{categoryID, month}
	if r, ok := v.rollups[k]; ok {
		return r, nil
	}
	r, err := ix.rollup(categoryID, month)
	if err != nil {
		return r, err
	}
	v.rollups[k] = r
	return r, nil
}

// RootRollups returns rollups for every root category in month.
func (v *Views) RootRollups(month model.Month) []BudgetRollup {
	v.mu.Lock()
	defer v.mu.Unlock()
	ix := v.current()
	if rs, ok := v.roots[month]; ok {
		return rs
	}
	rs := ix.rootRollups(month)
	v.roots[month] = rs
	return rs
}

// Transfers returns paired transfers and orphaned legs.
func (v *Views) Transfers() TransferSet {
	v.mu.Lock()
	defer v.mu.Unlock()
	ix := v.current()
	if v.transfers == nil {
		set := Transfers(ix.snap)
		v.transfers = &set
	}
	return *v.transfers
}

// Outstanding returns open borrow/lend exposure per counterparty.
func (v *Views) Outstanding() []Exposure {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Outstanding(v.current().snap)
}

// NetWorth sums active balances in currency, or the base currency when
// currency is empty.
func (v *Views) NetWorth(currency string) NetWorth {
	v.mu.Lock()
	defer v.mu.Unlock()
	ix := v.current()
	if currency == "" {
		currency = ix.base
	}
	return ix.netWorth(currency)
}
