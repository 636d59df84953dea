// Package aggregate derives balances, conversions, budget rollups and
// transfer pairs from a cache snapshot.
package aggregate

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
)

var (
	ErrUnknownAccount  = errors.New("unknown account")
	ErrUnknownCategory = errors.New("unknown category")
)

// index is the per-snapshot lookup structure every view is computed from.
type index struct {
	snap  *cache.Snapshot
	rates *Rates
	base  string

	accounts   map[string]model.Account
	balances   map[string]decimal.Decimal
	categories map[string]model.Category
	children   map[string][]string
	// live expense entries by category.
	expenses map[string][]model.LedgerEntry
}

func newIndex(snap *cache.Snapshot, base string) *index {
	ix := &index{
		snap:       snap,
		rates:      NewRates(snap.Rates),
		base:       base,
		accounts:   make(map[string]model.Account, len(snap.Accounts)),
		balances:   make(map[string]decimal.Decimal, len(snap.Accounts)),
		categories: make(map[string]model.Category, len(snap.Categories)),
		children:   make(map[string][]string),
		expenses:   make(map[string][]model.LedgerEntry),
	}
	if v, ok := snap.Setting(model.SettingBaseCurrency); ok && v != "" {
		ix.base = norm(v)
	}

	for _, a := range snap.Accounts {
		if a.Tombstoned() {
			continue
		}
		ix.accounts[a.ID] = a
		ix.balances[a.ID] = a.OpeningBalance
	}
	for _, e := range snap.Entries {
		if !e.Counts() {
			continue
		}
		if bal, ok := ix.balances[e.AccountID]; ok {
			ix.balances[e.AccountID] = bal.Add(e.Signed())
		}
		if e.Type == model.EntryExpense && e.CategoryID != "" {
			ix.expenses[e.CategoryID] = append(ix.expenses[e.CategoryID], e)
		}
	}
	for _, c := range snap.Categories {
		if c.Tombstoned() {
			continue
		}
		ix.categories[c.ID] = c
	}
	for _, c := range snap.Categories {
		if c.Tombstoned() || c.ParentID == "" {
			continue
		}
		if _, ok := ix.categories[c.ParentID]; ok {
			ix.children[c.ParentID] = append(ix.children[c.ParentID], c.ID)
		}
	}
	return ix
}

func (ix *index) balance(accountID string) (decimal.Decimal, error) {
	bal, ok := ix.balances[accountID]
	if !ok {
		return decimal.Decimal{}, ErrUnknownAccount
	}
	return bal, nil
}

// isRoot reports whether c has no live parent.
func (ix *index) isRoot(c model.Category) bool {
	if c.ParentID == "" {
		return true
	}
	_, ok := ix.categories[c.ParentID]
	return !ok
}
