package cache

import (
	"github.com/theirongolddev/finsync/internal/model"
)

// Snapshot is an immutable view of the cache at one version. Readers must
// not modify the slices.
type Snapshot struct {
	Version    uint64
	Entries    []model.LedgerEntry
	Accounts   []model.Account
	Categories []model.Category
	Budgets    []model.Budget
	BorrowLend []model.BorrowLend
	Settings   []model.Setting
	Rates      []model.ExchangeRate
}

// Snapshot returns the current contents. Consecutive calls without an
// intervening write share one snapshot.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	if s := c.snap; s != nil {
		c.mu.RUnlock()
		return s
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		c.snap = &Snapshot{
			Version:    c.version,
			Entries:    c.entries.Values(),
			Accounts:   c.accounts.Values(),
			Categories: c.categories.Values(),
			Budgets:    c.budgets.Values(),
			BorrowLend: c.borrowLend.Values(),
			Settings:   c.settings.Values(),
			Rates:      c.rates.Values(),
		}
	}
	return c.snap
}

// Setting returns the value stored under key.
func (s *Snapshot) Setting(key string) (string, bool) {
	for _, st := range s.Settings {
		if st.Key == key {
			return st.Value, true
		}
	}
	return "", false
}

// Count returns the number of records of kind in the snapshot.
func (s *Snapshot) Count(kind model.Kind) int {
	switch kind {
	case model.KindLedgerEntries:
		return len(s.Entries)
	case model.KindTransfers:
		n := 0
		for _, e := range s.Entries {
			if e.TransferID != "" {
				n++
			}
		}
		return n
	case model.KindAccounts:
		return len(s.Accounts)
	case model.KindCategories:
		return len(s.Categories)
	case model.KindBudgets:
		return len(s.Budgets)
	case model.KindBorrowLend:
		return len(s.BorrowLend)
	case model.KindSettings:
		return len(s.Settings)
	case model.KindExchangeRates:
		return len(s.Rates)
	}
	return 0
}
