package mutate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"
)

// TransferInput describes money moving between two accounts. ToAmount is
// required when the currencies differ.
type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Currency      string
	ToAmount      decimal.Decimal
	ToCurrency    string
	Date          model.Date
	Note          string
}

// TransferResult reports the records a transfer wrote. On a partial
// failure it holds whichever writes succeeded.
type TransferResult struct {
	TransferID string
	Out        *model.LedgerEntry
	In         *model.LedgerEntry
	Rate       *model.ExchangeRate
}

// ErrInvalidTransfer is returned for transfers that cannot be written.
var ErrInvalidTransfer = errors.New("invalid transfer")

// CreateTransfer writes the outgoing leg, the incoming leg and, for a
// cross-currency transfer, the implied exchange rate. The writes are
// independent; a failure stops the sequence and leaves earlier writes in
// place.
func (m *Mutator) CreateTransfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if err := in.validate(); err != nil {
		return TransferResult{}, err
	}
	from := strings.ToUpper(in.Currency)
	to := strings.ToUpper(in.ToCurrency)
	if to == "" {
		to = from
	}
	toAmount := in.ToAmount
	if from == to {
		toAmount = in.Amount
	}
	date := in.Date
	if date.IsZero() {
		date = model.NewDate(m.now())
	}

	res := TransferResult{TransferID: uuid.NewString()}
	leg := func(account string, typ model.EntryType, amount decimal.Decimal, cur string) model.LedgerEntry {
		return model.LedgerEntry{
			AccountID:  account,
			Amount:     amount.Abs(),
			Currency:   cur,
			Type:       typ,
			Status:     model.StatusCompleted,
			Date:       date,
			TransferID: res.TransferID,
			Note:       in.Note,
		}
	}

	out, err := Save(ctx, m, model.KindLedgerEntries, leg(in.FromAccountID, model.EntryTransferOut, in.Amount, from))
	if err != nil {
		return res, fmt.Errorf("writing outgoing leg: %w", err)
	}
	res.Out = &out

	inLeg, err := Save(ctx, m, model.KindLedgerEntries, leg(in.ToAccountID, model.EntryTransferIn, toAmount, to))
	if err != nil {
		return res, fmt.Errorf("writing incoming leg: %w", err)
	}
	res.In = &inLeg

	if from != to {
		rate, err := Save(ctx, m, model.KindExchangeRates, model.ExchangeRate{
			FromCurrency: from,
			ToCurrency:   to,
			Rate:         toAmount.Div(in.Amount),
			Date:         date,
		})
		if err != nil {
			return res, fmt.Errorf("writing exchange rate: %w", err)
		}
		res.Rate = &rate
	}
	return res, nil
}

func (in TransferInput) validate() error {
	switch {
	case in.FromAccountID == "" || in.ToAccountID == "":
		return fmt.Errorf("%w: both accounts are required", ErrInvalidTransfer)
	case in.FromAccountID == in.ToAccountID:
		return fmt.Errorf("%w: source and destination are the same account", ErrInvalidTransfer)
	case !in.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransfer)
	case in.Currency == "":
		return fmt.Errorf("%w: currency is required", ErrInvalidTransfer)
	}
	if in.ToCurrency != "" && !strings.EqualFold(in.ToCurrency, in.Currency) && !in.ToAmount.IsPositive() {
		return fmt.Errorf("%w: cross-currency transfer needs a destination amount", ErrInvalidTransfer)
	}
	return nil
}

// AddEntry records a ledger entry.
func (m *Mutator) AddEntry(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, error) {
	if e.Status == "" {
		e.Status = model.StatusCompleted
	}
	if e.Date.IsZero() {
		e.Date = model.NewDate(m.now())
	}
	return Save(ctx, m, model.KindLedgerEntries, e)
}

// DeleteEntry soft-deletes a ledger entry.
func (m *Mutator) DeleteEntry(ctx context.Context, id string) error {
	return Delete[model.LedgerEntry](ctx, m, model.KindLedgerEntries, id)
}

// SetSetting stores value under key, reusing the existing row if any.
func (m *Mutator) SetSetting(ctx context.Context, key, value string) (model.Setting, error) {
	s := model.Setting{Key: key, Value: value}
	if cur, ok, err := cache.Lookup[model.Setting](m.cache, model.KindSettings, key); err != nil {
		return s, err
	} else if ok {
		s.Meta = cur.Meta
	}
	return Save(ctx, m, model.KindSettings, s)
}
