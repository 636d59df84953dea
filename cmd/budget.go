package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/finsync/internal/aggregate"
	"github.com/theirongolddev/finsync/internal/cli"
	"github.com/theirongolddev/finsync/internal/model"
)

var flagBudgetMonth string

var budgetCmd = &cobra.Command{
	Use:   "budget [CATEGORY_ID]",
	Short: "Show effective budgets and spending for a month",
	Long: "Without a category, show every top-level category. A category's\n" +
		"effective budget is the larger of its own budget and the sum of its\n" +
		"subcategories' effective budgets.",
	Args: cobra.MaximumNArgs(1),
	RunE: runBudget,
}

func init() {
	budgetCmd.Flags().StringVarP(&flagBudgetMonth, "month", "m", "", "Month as YYYY-MM (default: current month)")
	rootCmd.AddCommand(budgetCmd)
}

func parseMonthFlag(s string) (model.Month, error) {
	if s == "" {
		return model.MonthOf(time.Now()), nil
	}
	return model.ParseMonth(s)
}

func runBudget(_ *cobra.Command, args []string) error {
	month, err := parseMonthFlag(flagBudgetMonth)
	if err != nil {
		return err
	}

	return withSession(false, func(ctx context.Context, s *session) error {
		s.refresh(ctx)

		var rollups []aggregate.BudgetRollup
		if len(args) == 1 {
			r, err := s.views.EffectiveBudget(args[0], month)
			if err != nil {
				return err
			}
			rollups = []aggregate.BudgetRollup{r}
		} else {
			rollups = s.views.RootRollups(month)
		}

		var rows [][]string
		var notes []string
		var add func(r aggregate.BudgetRollup, depth int)
		add = func(r aggregate.BudgetRollup, depth int) {
			own := "-"
			if r.HasOwn {
				own = cli.FormatMoney(r.Own, r.Currency)
			}
			rows = append(rows, []string{
				strings.Repeat("  ", depth) + r.Name,
				own,
				cli.FormatMoney(r.Budget, r.Currency),
				cli.FormatMoney(r.Spending, r.Currency),
				cli.FormatSigned(r.Remaining(), r.Currency),
				cli.RenderBudgetBar(r.Spending, r.Budget, 12),
			})
			if r.Cyclic {
				notes = append(notes, fmt.Sprintf("%s is part of a category cycle", r.Name))
			}
			if r.Truncated {
				notes = append(notes, fmt.Sprintf("%s is nested too deeply; deeper levels ignored", r.Name))
			}
			if r.Unconverted > 0 {
				notes = append(notes, fmt.Sprintf("%s: %d entries without a rate to %s", r.Name, r.Unconverted, r.Currency))
			}
			for _, sub := range r.Subcategories {
				add(sub, depth+1)
			}
		}
		for _, r := range rollups {
			add(r, 0)
		}

		if len(rows) == 0 {
			fmt.Println()
			fmt.Println("  No categories in the local cache.")
			fmt.Println()
			return nil
		}
		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   fmt.Sprintf("Budgets %s (%s)", month, s.views.BaseCurrency()),
			Headers: []string{"Category", "Own", "Effective", "Spent", "Left", "Used"},
			Rows:    rows,
		}))
		for _, n := range notes {
			fmt.Println(cli.RenderWarn("  " + n))
		}
		fmt.Println()
		return nil
	})
}
