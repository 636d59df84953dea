package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/finsync/internal/cli"
)

var convertCmd = &cobra.Command{
	Use:   "convert AMOUNT FROM TO",
	Short: "Convert an amount using the cached exchange rates",
	Example: "  finsync convert 100 EUR USD\n" +
		"  finsync convert 12.50 usd jpy --offline",
	Args: cobra.ExactArgs(3),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
}

func runConvert(_ *cobra.Command, args []string) error {
	amount, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[0], err)
	}
	from, to := strings.ToUpper(args[1]), strings.ToUpper(args[2])

	return withSession(false, func(ctx context.Context, s *session) error {
		s.refresh(ctx)

		out, ok := s.views.Convert(amount, from, to)
		if !ok {
			return fmt.Errorf("no exchange rate between %s and %s", from, to)
		}
		fmt.Printf("  %s = %s\n", cli.FormatMoney(amount, from), cli.FormatMoney(out, to))
		if !amount.IsZero() && from != to {
			fmt.Println(cli.RenderMuted("  rate " + cli.FormatRate(out.Div(amount))))
		}
		return nil
	})
}
