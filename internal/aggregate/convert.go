package aggregate

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
)

type pair struct{ from, to string }

// Rates resolves conversions from the most recent cached rate per
// currency pair.
type Rates struct {
	latest map[pair]model.ExchangeRate
}

// NewRates indexes rates, keeping the newest per direction. Tombstoned and
// non-positive rates are ignored.
func NewRates(rates []model.ExchangeRate) *Rates {
	r := &Rates{latest: make(map[pair]model.ExchangeRate)}
	for _, x := range rates {
		if x.Tombstoned() || !x.Rate.IsPositive() {
			continue
		}
		k := pair{norm(x.FromCurrency), norm(x.ToCurrency)}
		if cur, ok := r.latest[k]; ok && !newerRate(x, cur) {
			continue
		}
		r.latest[k] = x
	}
	return r
}

func newerRate(a, b model.ExchangeRate) bool {
	if !a.Date.Equal(b.Date.Time) {
		return a.Date.After(b.Date.Time)
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func norm(c string) string { return strings.ToUpper(strings.TrimSpace(c)) }

// Rate returns the factor converting from into to: the direct rate when
// cached, else the inverse of the reverse rate.
func (r *Rates) Rate(from, to string) (decimal.Decimal, bool) {
	from, to = norm(from), norm(to)
	if from == to {
		return decimal.NewFromInt(1), true
	}
	if x, ok := r.latest[pair{from, to}]; ok {
		return x.Rate, true
	}
	if x, ok := r.latest[pair{to, from}]; ok {
		return decimal.NewFromInt(1).Div(x.Rate), true
	}
	return decimal.Decimal{}, false
}

// Convert converts amount. ok is false when no rate links the currencies;
// the amount must then be treated as unconverted, not zero.
func (r *Rates) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	from, to = norm(from), norm(to)
	if from == to {
		return amount, true
	}
	if x, ok := r.latest[pair{from, to}]; ok {
		return amount.Mul(x.Rate), true
	}
	if x, ok := r.latest[pair{to, from}]; ok {
		return amount.Div(x.Rate), true
	}
	return decimal.Decimal{}, false
}

// Convert converts amount using the rates in snap.
func Convert(snap *cache.Snapshot, amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	return NewRates(snap.Rates).Convert(amount, from, to)
}
