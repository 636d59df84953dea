package model

import "github.com/shopspring/decimal"

// BudgetStatus is the activation state of a budget.
type BudgetStatus string

const (
	BudgetActive   BudgetStatus = "Active"
	BudgetInactive BudgetStatus = "Inactive"
)

// Budget is a spending limit for a category, either for one month or
// recurring over a month range.
type Budget struct {
	Meta
	CategoryID string          `json:"category_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency,omitempty"`
	Status     BudgetStatus    `json:"status"`
	Recurring  bool            `json:"recurring"`
	Month      *Month          `json:"month,omitempty"`
	StartMonth *Month          `json:"start_month,omitempty"`
	EndMonth   *Month          `json:"end_month,omitempty"`
}

// Covers reports whether the budget applies to m. Inactive and tombstoned
// budgets never apply.
func (b Budget) Covers(m Month) bool {
	if b.Tombstoned() || b.Status != BudgetActive {
		return false
	}
	if !b.Recurring {
		return b.Month != nil && *b.Month == m
	}
	if b.StartMonth == nil || m.Before(*b.StartMonth) {
		return false
	}
	return b.EndMonth == nil || !b.EndMonth.Before(m)
}
