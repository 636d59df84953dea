package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/finsync/internal/cli"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the local cache holds and when each kind last synced",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	return withSession(false, func(_ context.Context, s *session) error {
		rows := make([][]string, 0)
		for _, st := range s.engine.Status() {
			rows = append(rows, []string{
				string(st.Kind),
				st.Mode,
				cli.FormatNumber(int64(st.Records)),
				cli.FormatAgo(st.Cursor),
			})
		}

		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Local cache",
			Headers: []string{"Kind", "Push", "Records", "Last sync"},
			Rows:    rows,
		}))

		switch {
		case s.online():
			fmt.Printf("  Server: %s (user %s)\n", s.cfg.Supabase.URL, s.principal)
		case flagOffline:
			fmt.Println(cli.RenderMuted("  Server: not contacted (--offline)"))
		default:
			fmt.Println(cli.RenderWarn("  Server: not configured; run `finsync setup`"))
		}
		fmt.Printf("  Base currency: %s\n", s.views.BaseCurrency())
		fmt.Println()
		return nil
	})
}
