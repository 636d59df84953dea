package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
)

// Exposure is what is owed to and by one counterparty in one currency.
type Exposure struct {
	Counterparty string          `json:"counterparty"`
	Currency     string          `json:"currency"`
	Borrowed     decimal.Decimal `json:"borrowed"`
	Lent         decimal.Decimal `json:"lent"`
	// Net is positive when the counterparty owes the user.
	Net     decimal.Decimal `json:"net"`
	Records int             `json:"records"`
}

// Outstanding sums the unpaid part of open borrow/lend records per
// counterparty and currency.
func Outstanding(snap *cache.Snapshot) []Exposure {
	type key struct{ who, cur string }
	byKey := make(map[key]*Exposure)
	for _, b := range snap.BorrowLend {
		if b.Tombstoned() || b.Status == model.LoanSettled {
			continue
		}
		left := b.Remaining()
		if left.IsZero() {
			continue
		}
		k := key{b.Counterparty, norm(b.Currency)}
		x, ok := byKey[k]
		if !ok {
			x = &Exposure{Counterparty: k.who, Currency: k.cur, Borrowed: decimal.Zero, Lent: decimal.Zero}
			byKey[k] = x
		}
		if b.Direction == model.Lent {
			x.Lent = x.Lent.Add(left)
		} else {
			x.Borrowed = x.Borrowed.Add(left)
		}
		x.Records++
	}

	out := make([]Exposure, 0, len(byKey))
	for _, x := range byKey {
		x.Net = x.Lent.Sub(x.Borrowed)
		out = append(out, *x)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Counterparty != out[j].Counterparty {
			return out[i].Counterparty < out[j].Counterparty
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}
