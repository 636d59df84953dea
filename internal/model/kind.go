// Package model defines the synchronized finance entities and their
// bookkeeping metadata.
package model

import "fmt"

// Kind identifies one synchronized entity collection.
type Kind string

const (
	KindLedgerEntries Kind = "ledger_entries"
	KindAccounts      Kind = "accounts"
	KindCategories    Kind = "categories"
	KindBudgets       Kind = "budgets"
	KindTransfers     Kind = "transfers"
	KindBorrowLend    Kind = "borrow_lend"
	KindSettings      Kind = "settings"
	KindExchangeRates Kind = "exchange_rates"
)

var allKinds = []Kind{
	KindLedgerEntries,
	KindAccounts,
	KindCategories,
	KindBudgets,
	KindTransfers,
	KindBorrowLend,
	KindSettings,
	KindExchangeRates,
}

// AllKinds returns every entity kind in a fixed order.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind resolves a kind from its name.
func ParseKind(s string) (Kind, error) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

func (k Kind) String() string { return string(k) }
