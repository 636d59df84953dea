package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/finsync/internal/cli"
	"github.com/theirongolddev/finsync/internal/model"
)

var flagSyncFull bool

var syncCmd = &cobra.Command{
	Use:   "sync [KIND...]",
	Short: "Fetch changes from the server into the local cache",
	Long: "Sync the named kinds, or every kind when none are given. The first\n" +
		"sync of a kind is a full fetch; later ones fetch only rows updated\n" +
		"since the last successful sync.",
	Example: "  finsync sync\n" +
		"  finsync sync ledger_entries accounts\n" +
		"  finsync sync --full",
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&flagSyncFull, "full", false, "Refetch everything instead of changes since the cursor")
	rootCmd.AddCommand(syncCmd)
}

func runSync(_ *cobra.Command, args []string) error {
	kinds := make([]model.Kind, 0, len(args))
	for _, a := range args {
		k, err := model.ParseKind(a)
		if err != nil {
			return err
		}
		kinds = append(kinds, k)
	}

	return withSession(true, func(ctx context.Context, s *session) error {
		if len(kinds) == 0 {
			kinds = s.engine.Registry().Kinds()
		}
		start := time.Now()
		results, err := s.engine.SyncAll(ctx, kinds, flagSyncFull)

		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		rows := make([][]string, 0, len(kinds))
		for _, k := range kinds {
			r, ok := results[k]
			if !ok {
				rows = append(rows, []string{string(k), "failed", "", "", ""})
				continue
			}
			mode := "full"
			switch {
			case r.Deferred:
				mode = "deferred"
			case r.Incremental:
				mode = "incremental"
			}
			rows = append(rows, []string{
				string(k),
				mode,
				cli.FormatNumber(int64(r.Upserted)),
				cli.FormatNumber(int64(r.Removed)),
				r.Took.Round(time.Millisecond).String(),
			})
		}

		fmt.Println()
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   fmt.Sprintf("Sync (%s)", time.Since(start).Round(time.Millisecond)),
			Headers: []string{"Kind", "Mode", "Upserted", "Removed", "Took"},
			Rows:    rows,
		}))
		fmt.Println()
		return err
	})
}
