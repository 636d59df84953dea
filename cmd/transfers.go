package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/finsync/internal/cli"
)

var flagTransfersLimit int

var transfersCmd = &cobra.Command{
	Use:   "transfers",
	Short: "List transfers between accounts",
	RunE:  runTransfers,
}

var outstandingCmd = &cobra.Command{
	Use:   "outstanding",
	Short: "Show open borrow/lend balances per counterparty",
	RunE:  runOutstanding,
}

func init() {
	transfersCmd.Flags().IntVarP(&flagTransfersLimit, "limit", "n", 20, "Show at most this many transfers (0 for all)")
	rootCmd.AddCommand(transfersCmd)
	rootCmd.AddCommand(outstandingCmd)
}

func runTransfers(_ *cobra.Command, _ []string) error {
	return withSession(false, func(ctx context.Context, s *session) error {
		s.refresh(ctx)

		set := s.views.Transfers()
		names := make(map[string]string)
		for _, b := range s.views.Balances() {
			names[b.AccountID] = b.Name
		}
		name := func(id string) string {
			if n, ok := names[id]; ok {
				return n
			}
			return id
		}

		var rows [][]string
		for i := len(set.Pairs) - 1; i >= 0; i-- {
			if flagTransfersLimit > 0 && len(rows) >= flagTransfersLimit {
				break
			}
			p := set.Pairs[i]
			received, rate := "", ""
			if p.Rate != nil {
				received = cli.FormatMoney(p.InAmount, p.InCurrency)
				rate = cli.FormatRate(*p.Rate)
			}
			rows = append(rows, []string{
				p.Date.Format(time.DateOnly),
				name(p.FromAccountID) + " → " + name(p.ToAccountID),
				cli.FormatMoney(p.OutAmount, p.OutCurrency),
				received,
				rate,
			})
		}

		fmt.Println()
		if len(rows) == 0 {
			fmt.Println("  No transfers.")
		} else {
			fmt.Print(cli.RenderTable(cli.Table{
				Title:   fmt.Sprintf("Transfers (%d)", len(set.Pairs)),
				Headers: []string{"Date", "Route", "Sent", "Received", "Rate"},
				Rows:    rows,
			}))
		}
		for _, o := range set.Orphans {
			fmt.Println(cli.RenderWarn(fmt.Sprintf("  Unpaired leg %s (transfer %s) on %s",
				o.ID, o.TransferID, name(o.AccountID))))
		}
		fmt.Println()
		return nil
	})
}

func runOutstanding(_ *cobra.Command, _ []string) error {
	return withSession(false, func(ctx context.Context, s *session) error {
		s.refresh(ctx)

		exposures := s.views.Outstanding()
		fmt.Println()
		if len(exposures) == 0 {
			fmt.Println("  Nothing outstanding.")
			fmt.Println()
			return nil
		}
		rows := make([][]string, 0, len(exposures))
		for _, x := range exposures {
			rows = append(rows, []string{
				x.Counterparty,
				cli.FormatMoney(x.Lent, x.Currency),
				cli.FormatMoney(x.Borrowed, x.Currency),
				cli.FormatSigned(x.Net, x.Currency),
				fmt.Sprint(x.Records),
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Outstanding",
			Headers: []string{"Counterparty", "Lent", "Borrowed", "Net", "Records"},
			Rows:    rows,
		}))
		fmt.Println(cli.RenderMuted("  Net is positive when the counterparty owes you."))
		fmt.Println()
		return nil
	})
}
