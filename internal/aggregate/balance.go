package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
)

// Balance is the derived balance of one account.
type Balance struct {
	AccountID string              `json:"account_id"`
	Name      string              `json:"name"`
	Currency  string              `json:"currency"`
	Status    model.AccountStatus `json:"status"`
	Balance   decimal.Decimal     `json:"balance"`
}

// AccountBalance returns the opening balance plus the signed amounts of
// every live, non-cancelled entry on the account.
func AccountBalance(snap *cache.Snapshot, accountID string) (decimal.Decimal, error) {
	bal, err := newIndex(snap, "").balance(accountID)
	if err != nil {
		return bal, fmt.Errorf("%w: %s", err, accountID)
	}
	return bal, nil
}

// Balances returns every live account's balance in cache order.
func Balances(snap *cache.Snapshot) []Balance {
	return newIndex(snap, "").allBalances()
}

func (ix *index) allBalances() []Balance {
	out := make([]Balance, 0, len(ix.accounts))
	for _, a := range ix.snap.Accounts {
		if a.Tombstoned() {
			continue
		}
		out = append(out, Balance{
			AccountID: a.ID,
			Name:      a.Name,
			Currency:  a.Currency,
			Status:    a.Status,
			Balance:   ix.balances[a.ID],
		})
	}
	return out
}

// NetWorth is the sum of active account balances in one currency.
type NetWorth struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
	// Unconverted lists accounts with no rate into Currency.
	Unconverted []string `json:"unconverted,omitempty"`
}

// ComputeNetWorth sums active balances converted into currency.
func ComputeNetWorth(snap *cache.Snapshot, currency string) NetWorth {
	return newIndex(snap, "").netWorth(currency)
}

func (ix *index) netWorth(currency string) NetWorth {
	nw := NetWorth{Currency: norm(currency), Total: decimal.Zero}
	for _, b := range ix.allBalances() {
		if b.Status == model.AccountArchived {
			continue
		}
		v, ok := ix.rates.Convert(b.Balance, b.Currency, currency)
		if !ok {
			nw.Unconverted = append(nw.Unconverted, b.AccountID)
			continue
		}
		nw.Total = nw.Total.Add(v)
	}
	return nw
}
