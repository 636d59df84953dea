package model

import "github.com/shopspring/decimal"

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountActive   AccountStatus = "Active"
	AccountArchived AccountStatus = "Archived"
)

// Account is a money container. Its balance is derived from ledger entries.
type Account struct {
	Meta
	Name           string          `json:"name"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Currency       string          `json:"currency"`
	Status         AccountStatus   `json:"status"`
}
