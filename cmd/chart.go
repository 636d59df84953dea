package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/theirongolddev/finsync/internal/aggregate"
	"github.com/theirongolddev/finsync/internal/model"
)

var (
	flagChartMonth string
	flagChartOut   string
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render budget against spending per top-level category as a PNG",
	RunE:  runChart,
}

func init() {
	chartCmd.Flags().StringVarP(&flagChartMonth, "month", "m", "", "Month as YYYY-MM (default: current month)")
	chartCmd.Flags().StringVarP(&flagChartOut, "out", "o", "", "Output file (default: budget-YYYY-MM.png)")
	rootCmd.AddCommand(chartCmd)
}

// errNothingToChart is returned when no category has a budget or spending.
var errNothingToChart = errors.New("no budgets or spending to chart")

func runChart(_ *cobra.Command, _ []string) error {
	month, err := parseMonthFlag(flagChartMonth)
	if err != nil {
		return err
	}
	out := flagChartOut
	if out == "" {
		out = fmt.Sprintf("budget-%s.png", month)
	}

	return withSession(false, func(ctx context.Context, s *session) error {
		s.refresh(ctx)

		var buf bytes.Buffer
		if err := renderBudgetChart(&buf, month, s.views.BaseCurrency(), s.views.RootRollups(month)); err != nil {
			return err
		}
		if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil { //nolint:gosec // user-chosen output file
			return fmt.Errorf("write chart: %w", err)
		}
		fmt.Printf("  Wrote %s\n", out)
		return nil
	})
}

// renderBudgetChart draws one budget bar and one spending bar per
// category. Spending over budget is drawn in red.
func renderBudgetChart(w io.Writer, month model.Month, currency string, rollups []aggregate.BudgetRollup) error {
	var bars []chart.Value
	for _, r := range rollups {
		if r.Budget.IsZero() && r.Spending.IsZero() {
			continue
		}
		spentColor := chart.ColorGreen
		if r.Spending.GreaterThan(r.Budget) {
			spentColor = chart.ColorRed
		}
		bars = append(bars,
			chart.Value{
				Label: r.Name,
				Value: r.Budget.InexactFloat64(),
				Style: chart.Style{
					StrokeColor: chart.ColorBlue,
					FillColor:   chart.ColorBlue.WithAlpha(100),
				},
			},
			chart.Value{
				Label: "spent",
				Value: r.Spending.InexactFloat64(),
				Style: chart.Style{
					StrokeColor: spentColor,
					FillColor:   spentColor,
				},
			},
		)
	}
	if len(bars) == 0 {
		return errNothingToChart
	}

	graph := chart.BarChart{
		Title: fmt.Sprintf("Budget vs spending, %s (%s)", month, currency),
		TitleStyle: chart.Style{
			FontSize:  14,
			FontColor: chart.ColorBlack,
		},
		Width:    max(600, 120*len(bars)),
		Height:   500,
		BarWidth: 40,
		Background: chart.Style{
			Padding:   chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
			FillColor: chart.ColorWhite,
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v any) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Bars: bars,
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render budget chart: %w", err)
	}
	return nil
}
