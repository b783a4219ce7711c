package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/leeeeey/TaskCenter/src/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show batch counts per state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		rt, cleanup, err := buildRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := rt.DB.Ping(ctx); err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}

		counts, err := rt.Batches.CountByStatus(ctx)
		if err != nil {
			return err
		}

		statuses := make([]model.ExecStatus, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, s)
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "STATUS\tCOUNT\n")
		total := 0
		for _, s := range statuses {
			fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
			total += counts[s]
		}
		w.Flush()
		fmt.Printf("\nTotal: %d batches\n", total)
		return nil
	},
}
