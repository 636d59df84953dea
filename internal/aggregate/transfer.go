package aggregate

import (
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
)

// Transfer is a pair of linked ledger entries moving money between two
// accounts. It is derived, never stored.
type Transfer struct {
	TransferID    string          `json:"transfer_id"`
	OutEntryID    string          `json:"out_entry_id"`
	InEntryID     string          `json:"in_entry_id"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	OutAmount     decimal.Decimal `json:"out_amount"`
	InAmount      decimal.Decimal `json:"in_amount"`
	OutCurrency   string          `json:"out_currency"`
	InCurrency    string          `json:"in_currency"`
	// Rate is InAmount/OutAmount for cross-currency transfers.
	Rate *decimal.Decimal `json:"rate,omitempty"`
	Date model.Date       `json:"date"`
}

// TransferSet holds complete pairs and the legs that could not be paired.
type TransferSet struct {
	Pairs   []Transfer          `json:"pairs"`
	Orphans []model.LedgerEntry `json:"orphans,omitempty"`
}

// Transfers groups live entries by transfer_id. A group of exactly one
// outgoing and one incoming leg is a pair; anything else is orphaned.
func Transfers(snap *cache.Snapshot) TransferSet {
	var (
		order  []string
		groups = make(map[string][]model.LedgerEntry)
	)
	for _, e := range snap.Entries {
		if e.TransferID == "" || e.Tombstoned() {
			continue
		}
		if _, ok := groups[e.TransferID]; !ok {
			order = append(order, e.TransferID)
		}
		groups[e.TransferID] = append(groups[e.TransferID], e)
	}

	var set TransferSet
	for _, id := range order {
		legs := groups[id]
		t, ok := pairLegs(id, legs)
		if !ok {
			set.Orphans = append(set.Orphans, legs...)
			continue
		}
		set.Pairs = append(set.Pairs, t)
	}
	return set
}

func pairLegs(id string, legs []model.LedgerEntry) (Transfer, bool) {
	if len(legs) != 2 {
		return Transfer{}, false
	}
	out, in := legs[0], legs[1]
	if out.Type == model.EntryTransferIn {
		out, in = in, out
	}
	if out.Type != model.EntryTransferOut || in.Type != model.EntryTransferIn {
		return Transfer{}, false
	}
	t := Transfer{
		TransferID:    id,
		OutEntryID:    out.ID,
		InEntryID:     in.ID,
		FromAccountID: out.AccountID,
		ToAccountID:   in.AccountID,
		OutAmount:     out.Amount.Abs(),
		InAmount:      in.Amount.Abs(),
		OutCurrency:   out.Currency,
		InCurrency:    in.Currency,
		Date:          out.Date,
	}
	if norm(out.Currency) != norm(in.Currency) && t.OutAmount.IsPositive() {
		rate := t.InAmount.Div(t.OutAmount)
		t.Rate = &rate
	}
	return t, true
}
