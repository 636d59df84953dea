package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
)

// MaxCategoryDepth bounds category tree traversal.
const MaxCategoryDepth = 32

// BudgetRollup is the effective budget and spending of a category subtree
// for one month, in the base currency.
type BudgetRollup struct {
	CategoryID string          `json:"category_id"`
	Name       string          `json:"name"`
	Month      model.Month     `json:"month"`
	Currency   string          `json:"currency"`
	Own        decimal.Decimal `json:"own_budget"`
	HasOwn     bool            `json:"has_own_budget"`
	Children   decimal.Decimal `json:"children_budget"`
	// Budget is max(Own, Children).
	Budget        decimal.Decimal `json:"budget"`
	OwnSpending   decimal.Decimal `json:"own_spending"`
	Spending      decimal.Decimal `json:"spending"`
	Unconverted   int             `json:"unconverted,omitempty"`
	Cyclic        bool            `json:"cyclic,omitempty"`
	Truncated     bool            `json:"truncated,omitempty"`
	Subcategories []BudgetRollup  `json:"subcategories,omitempty"`
}

// Remaining is Budget minus Spending.
func (r BudgetRollup) Remaining() decimal.Decimal {
	return r.Budget.Sub(r.Spending)
}

// EffectiveBudget resolves the rollup for categoryID in month. base is the
// reporting currency used when the snapshot has no base_currency setting.
func EffectiveBudget(snap *cache.Snapshot, categoryID string, month model.Month, base string) (BudgetRollup, error) {
	return newIndex(snap, norm(base)).rollup(categoryID, month)
}

// RootRollups returns rollups for root categories only, so no amount is
// counted under more than one top-level node.
func RootRollups(snap *cache.Snapshot, month model.Month, base string) []BudgetRollup {
	return newIndex(snap, norm(base)).rootRollups(month)
}

func (ix *index) rollup(categoryID string, month model.Month) (BudgetRollup, error) {
	if _, ok := ix.categories[categoryID]; !ok {
		return BudgetRollup{}, fmt.Errorf("%w: %s", ErrUnknownCategory, categoryID)
	}
	return ix.walk(categoryID, month, map[string]bool{}, 0), nil
}

func (ix *index) rootRollups(month model.Month) []BudgetRollup {
	var out []BudgetRollup
	seen := make(map[string]bool)
	for _, c := range ix.snap.Categories {
		if c.Tombstoned() || !ix.isRoot(c) {
			continue
		}
		r := ix.walk(c.ID, month, map[string]bool{}, 0)
		markSeen(r, seen)
		out = append(out, r)
	}
	// Categories only reachable through a parent cycle have no root. Each
	// cycle is reported once, from its first member in cache order.
	for _, c := range ix.snap.Categories {
		if c.Tombstoned() || seen[c.ID] {
			continue
		}
		r := ix.walk(c.ID, month, map[string]bool{}, 0)
		r.Cyclic = true
		markSeen(r, seen)
		out = append(out, r)
	}
	return out
}

func markSeen(r BudgetRollup, seen map[string]bool) {
	seen[r.CategoryID] = true
	for _, sub := range r.Subcategories {
		markSeen(sub, seen)
	}
}

// walk computes the rollup of id. path holds the categories on the current
// branch; a child already on it closes a cycle and is skipped.
func (ix *index) walk(id string, month model.Month, path map[string]bool, depth int) BudgetRollup {
	c := ix.categories[id]
	r := BudgetRollup{
		CategoryID: id,
		Name:       c.Name,
		Month:      month,
		Currency:   ix.base,
		Own:        decimal.Zero,
		Children:   decimal.Zero,
	}

	if b, ok := ix.ownBudget(id, month); ok {
		amt, conv := ix.toBase(b.Amount, b.Currency)
		if conv {
			r.Own, r.HasOwn = amt, true
		} else {
			r.Unconverted++
		}
	}
	r.OwnSpending, r.Unconverted = ix.spending(id, month, r.Unconverted)
	r.Spending = r.OwnSpending

	path[id] = true
	defer delete(path, id)

	for _, child := range ix.children[id] {
		if path[child] {
			r.Cyclic = true
			continue
		}
		if depth+1 >= MaxCategoryDepth {
			r.Truncated = true
			continue
		}
		sub := ix.walk(child, month, path, depth+1)
		r.Children = r.Children.Add(sub.Budget)
		r.Spending = r.Spending.Add(sub.Spending)
		r.Unconverted += sub.Unconverted
		r.Cyclic = r.Cyclic || sub.Cyclic
		r.Truncated = r.Truncated || sub.Truncated
		r.Subcategories = append(r.Subcategories, sub)
	}

	r.Budget = decimal.Max(r.Own, r.Children)
	return r
}

// ownBudget picks the category's effective budget for month: an active
// one-shot budget for that month, else an active recurring budget
// covering it. Ties go to the most recently updated record.
func (ix *index) ownBudget(categoryID string, month model.Month) (model.Budget, bool) {
	var oneShot, recurring *model.Budget
	for i := range ix.snap.Budgets {
		b := &ix.snap.Budgets[i]
		if b.CategoryID != categoryID || !b.Covers(month) {
			continue
		}
		if b.Recurring {
			if recurring == nil || newerBudget(b, recurring) {
				recurring = b
			}
		} else if oneShot == nil || b.UpdatedAt.After(oneShot.UpdatedAt) {
			oneShot = b
		}
	}
	switch {
	case oneShot != nil:
		return *oneShot, true
	case recurring != nil:
		return *recurring, true
	}
	return model.Budget{}, false
}

// newerBudget prefers the recurring budget that started latest.
func newerBudget(a, b *model.Budget) bool {
	if *a.StartMonth != *b.StartMonth {
		return b.StartMonth.Before(*a.StartMonth)
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

// spending sums the category's own expenses in month converted to the
// base currency. Entries without a rate are counted in unconverted.
func (ix *index) spending(categoryID string, month model.Month, unconverted int) (decimal.Decimal, int) {
	total := decimal.Zero
	for _, e := range ix.expenses[categoryID] {
		if e.Date.IsZero() || !month.Contains(e.Date.Time) {
			continue
		}
		v, ok := ix.toBase(e.Amount.Abs(), e.Currency)
		if !ok {
			unconverted++
			continue
		}
		total = total.Add(v)
	}
	return total, unconverted
}

// toBase converts into the base currency. Without a base currency, or
// for amounts without one, amounts are taken as-is.
func (ix *index) toBase(amount decimal.Decimal, currency string) (decimal.Decimal, bool) {
	if ix.base == "" || currency == "" {
		return amount, true
	}
	return ix.rates.Convert(amount, currency, ix.base)
}
