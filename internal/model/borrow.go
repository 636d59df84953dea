package model

import "github.com/shopspring/decimal"

// LoanDirection tells whether money was borrowed from or lent to the
// counterparty.
type LoanDirection string

const (
	Borrowed LoanDirection = "Borrowed"
	Lent     LoanDirection = "Lent"
)

// LoanStatus is the settlement state of a borrow/lend record.
type LoanStatus string

const (
	LoanOpen    LoanStatus = "Open"
	LoanSettled LoanStatus = "Settled"
)

// BorrowLend records money owed to or by a counterparty.
type BorrowLend struct {
	Meta
	Counterparty string          `json:"counterparty"`
	Direction    LoanDirection   `json:"direction"`
	Amount       decimal.Decimal `json:"amount"`
	RepaidAmount decimal.Decimal `json:"repaid_amount"`
	Currency     string          `json:"currency"`
	Status       LoanStatus      `json:"status"`
	DueDate      *Date           `json:"due_date,omitempty"`
}

// Remaining is the unpaid part of the record, never negative.
func (b BorrowLend) Remaining() decimal.Decimal {
	r := b.Amount.Sub(b.RepaidAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
