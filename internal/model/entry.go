package model

import "github.com/shopspring/decimal"

// EntryType is the direction of a ledger entry.
type EntryType string

const (
	EntryIncome      EntryType = "Income"
	EntryExpense     EntryType = "Expense"
	EntryTransferIn  EntryType = "Transfer In"
	EntryTransferOut EntryType = "Transfer Out"
)

// Credit reports whether entries of this type increase the account balance.
func (t EntryType) Credit() bool {
	return t == EntryIncome || t == EntryTransferIn
}

// EntryStatus is the settlement state of a ledger entry.
type EntryStatus string

const (
	StatusCompleted EntryStatus = "Completed"
	StatusPending   EntryStatus = "Pending"
	StatusCancelled EntryStatus = "Cancelled"
)

// LedgerEntry is a single financial movement against an account.
// Amount is stored unsigned; the sign comes from Type.
type LedgerEntry struct {
	Meta
	AccountID  string          `json:"account_id"`
	CategoryID string          `json:"category_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Type       EntryType       `json:"type"`
	Status     EntryStatus     `json:"status"`
	Date       Date            `json:"date"`
	TransferID string          `json:"transfer_id,omitempty"`
	Note       string          `json:"note,omitempty"`
}

// Signed returns the amount with the sign implied by the entry type.
func (e LedgerEntry) Signed() decimal.Decimal {
	amt := e.Amount.Abs()
	if e.Type.Credit() {
		return amt
	}
	return amt.Neg()
}

// Counts reports whether the entry participates in balances and spending.
func (e LedgerEntry) Counts() bool {
	return !e.Tombstoned() && e.Status != StatusCancelled
}
