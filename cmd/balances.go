package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/finsync/internal/cli"
	"github.com/theirongolddev/finsync/internal/model"
)

var (
	flagBalancesArchived bool
	flagBalancesCurrency string
)

var balancesCmd = &cobra.Command{
	Use:     "balances [ACCOUNT_ID]",
	Aliases: []string{"bal"},
	Short:   "Show account balances and net worth",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runBalances,
}

func init() {
	balancesCmd.Flags().BoolVar(&flagBalancesArchived, "archived", false, "Include archived accounts")
	balancesCmd.Flags().StringVar(&flagBalancesCurrency, "currency", "", "Net worth currency (default: base currency)")
	rootCmd.AddCommand(balancesCmd)
}

func runBalances(_ *cobra.Command, args []string) error {
	return withSession(false, func(ctx context.Context, s *session) error {
		s.refresh(ctx)

		if len(args) == 1 {
			bal, err := s.views.AccountBalance(args[0])
			if err != nil {
				return err
			}
			fmt.Println(bal.String())
			return nil
		}

		currency := flagBalancesCurrency
		if currency == "" {
			currency = s.views.BaseCurrency()
		}
		nw := s.views.NetWorth(currency)

		var rows [][]string
		for _, b := range s.views.Balances() {
			if b.Status == model.AccountArchived && !flagBalancesArchived {
				continue
			}
			rows = append(rows, []string{b.Name, cli.FormatMoney(b.Balance, b.Currency), string(b.Status)})
		}
		if len(rows) == 0 {
			fmt.Println()
			fmt.Println("  No accounts in the local cache. Run `finsync sync` first.")
			fmt.Println()
			return nil
		}
		rows = append(rows, []string{"---"})
		rows = append(rows, []string{"Net worth", cli.FormatMoney(nw.Total, nw.Currency), ""})

		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Balances",
			Headers: []string{"Account", "Balance", "Status"},
			Rows:    rows,
		}))
		if len(nw.Unconverted) > 0 {
			fmt.Println(cli.RenderWarn(fmt.Sprintf("  No %s rate for: %s (left out of net worth)",
				nw.Currency, strings.Join(nw.Unconverted, ", "))))
		}
		fmt.Println()
		return nil
	})
}
