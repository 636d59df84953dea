package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/finsync/internal/cli"
	"github.com/theirongolddev/finsync/internal/model"
	"github.com/theirongolddev/finsync/internal/mutate"
)

var (
	flagEntryAccount  string
	flagEntryCategory string
	flagEntryType     string
	flagEntryCurrency string
	flagEntryDate     string
	flagEntryNote     string
	flagEntryPending  bool

	flagTransferFrom     string
	flagTransferTo       string
	flagTransferToAmount string
	flagTransferDate     string
	flagTransferNote     string
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Record or delete ledger entries",
}

var entryAddCmd = &cobra.Command{
	Use:     "add AMOUNT",
	Short:   "Record an income or expense",
	Example: "  finsync entry add 42.50 --account acc_1 --category food",
	Args:    cobra.ExactArgs(1),
	RunE:    runEntryAdd,
}

var entryDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntryDelete,
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Move money between accounts",
}

var transferAddCmd = &cobra.Command{
	Use:   "add AMOUNT",
	Short: "Record a transfer as a linked pair of entries",
	Example: "  finsync transfer add 100 --from checking --to savings\n" +
		"  finsync transfer add 100 --from usd_acc --to eur_acc --to-amount 91.20",
	Args: cobra.ExactArgs(1),
	RunE: runTransferAdd,
}

func init() {
	entryAddCmd.Flags().StringVarP(&flagEntryAccount, "account", "a", "", "Account ID (required)")
	entryAddCmd.Flags().StringVarP(&flagEntryCategory, "category", "c", "", "Category ID")
	entryAddCmd.Flags().StringVarP(&flagEntryType, "type", "t", "expense", "income or expense")
	entryAddCmd.Flags().StringVar(&flagEntryCurrency, "currency", "", "Currency (default: the account's)")
	entryAddCmd.Flags().StringVar(&flagEntryDate, "date", "", "Date as YYYY-MM-DD (default: today)")
	entryAddCmd.Flags().StringVar(&flagEntryNote, "note", "", "Free-text note")
	entryAddCmd.Flags().BoolVar(&flagEntryPending, "pending", false, "Record as pending")
	_ = entryAddCmd.MarkFlagRequired("account")

	transferAddCmd.Flags().StringVar(&flagTransferFrom, "from", "", "Source account ID (required)")
	transferAddCmd.Flags().StringVar(&flagTransferTo, "to", "", "Destination account ID (required)")
	transferAddCmd.Flags().StringVar(&flagTransferToAmount, "to-amount", "", "Amount received, for cross-currency transfers")
	transferAddCmd.Flags().StringVar(&flagTransferDate, "date", "", "Date as YYYY-MM-DD (default: today)")
	transferAddCmd.Flags().StringVar(&flagTransferNote, "note", "", "Free-text note")
	_ = transferAddCmd.MarkFlagRequired("from")
	_ = transferAddCmd.MarkFlagRequired("to")

	entryCmd.AddCommand(entryAddCmd, entryDeleteCmd)
	transferCmd.AddCommand(transferAddCmd)
	rootCmd.AddCommand(entryCmd, transferCmd)
}

func parseEntryType(s string) (model.EntryType, error) {
	switch strings.ToLower(s) {
	case "income", "in":
		return model.EntryIncome, nil
	case "expense", "out":
		return model.EntryExpense, nil
	}
	return "", fmt.Errorf("unknown entry type %q (want income or expense)", s)
}

func parseDateFlag(s string) (model.Date, error) {
	if s == "" {
		return model.Date{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return model.Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return model.NewDate(t), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return d, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return d, fmt.Errorf("amount must be positive, got %s", s)
	}
	return d, nil
}

// accountCurrency looks up the currency of a cached account.
func accountCurrency(s *session, id string) (string, error) {
	for _, b := range s.views.Balances() {
		if b.AccountID == id {
			return b.Currency, nil
		}
	}
	return "", fmt.Errorf("account %q is not in the local cache; run `finsync sync accounts`", id)
}

func runEntryAdd(_ *cobra.Command, args []string) error {
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	typ, err := parseEntryType(flagEntryType)
	if err != nil {
		return err
	}
	date, err := parseDateFlag(flagEntryDate)
	if err != nil {
		return err
	}

	return withSession(true, func(ctx context.Context, s *session) error {
		currency := strings.ToUpper(flagEntryCurrency)
		if currency == "" {
			if currency, err = accountCurrency(s, flagEntryAccount); err != nil {
				return err
			}
		}
		e := model.LedgerEntry{
			AccountID:  flagEntryAccount,
			CategoryID: flagEntryCategory,
			Amount:     amount,
			Currency:   currency,
			Type:       typ,
			Date:       date,
			Note:       flagEntryNote,
		}
		if flagEntryPending {
			e.Status = model.StatusPending
		}
		saved, err := s.mutator.AddEntry(ctx, e)
		if err != nil {
			return err
		}
		fmt.Printf("  Recorded %s %s (%s)\n", strings.ToLower(string(saved.Type)),
			cli.FormatMoney(saved.Amount, saved.Currency), saved.ID)
		return nil
	})
}

func runEntryDelete(_ *cobra.Command, args []string) error {
	return withSession(true, func(ctx context.Context, s *session) error {
		if err := s.mutator.DeleteEntry(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("  Deleted %s\n", args[0])
		return nil
	})
}

func runTransferAdd(_ *cobra.Command, args []string) error {
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	date, err := parseDateFlag(flagTransferDate)
	if err != nil {
		return err
	}

	return withSession(true, func(ctx context.Context, s *session) error {
		fromCur, err := accountCurrency(s, flagTransferFrom)
		if err != nil {
			return err
		}
		toCur, err := accountCurrency(s, flagTransferTo)
		if err != nil {
			return err
		}
		in := mutate.TransferInput{
			FromAccountID: flagTransferFrom,
			ToAccountID:   flagTransferTo,
			Amount:        amount,
			Currency:      fromCur,
			ToCurrency:    toCur,
			Date:          date,
			Note:          flagTransferNote,
		}
		if flagTransferToAmount != "" {
			if in.ToAmount, err = parseAmount(flagTransferToAmount); err != nil {
				return err
			}
		} else if !strings.EqualFold(fromCur, toCur) {
			conv, ok := s.views.Convert(amount, fromCur, toCur)
			if !ok {
				return fmt.Errorf("no %s→%s rate cached; pass --to-amount", fromCur, toCur)
			}
			in.ToAmount = conv.Round(2)
		}

		res, err := s.mutator.CreateTransfer(ctx, in)
		if err != nil {
			if res.Out != nil {
				s.log.Warn("transfer partially written", "transfer_id", res.TransferID,
					"out", res.Out != nil, "in", res.In != nil)
			}
			return err
		}
		fmt.Printf("  Transfer %s: %s from %s", res.TransferID,
			cli.FormatMoney(res.Out.Amount, res.Out.Currency), flagTransferFrom)
		if res.Rate != nil {
			fmt.Printf(" → %s", cli.FormatMoney(res.In.Amount, res.In.Currency))
		}
		fmt.Printf(" to %s\n", flagTransferTo)
		return nil
	})
}
