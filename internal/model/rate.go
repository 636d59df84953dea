package model

import "github.com/shopspring/decimal"

// ExchangeRate converts FromCurrency into ToCurrency as of Date.
type ExchangeRate struct {
	Meta
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Rate         decimal.Decimal `json:"rate"`
	Date         Date            `json:"date"`
}
