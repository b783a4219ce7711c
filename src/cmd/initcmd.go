package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/leeeeey/TaskCenter/src/database"
	"github.com/leeeeey/TaskCenter/src/scheduler"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the schema and seed batches for an empty batch table",
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

		if err := database.NewMigrator(rt.DB).Run(ctx); err != nil {
			return err
		}
		rt.Log.Info("schema ready")

		// First run: an empty batch table gets one generation pass so the
		// first tick has windows to dispatch.
		empty, err := rt.Batches.Empty(ctx)
		if err != nil {
			return err
		}
		if empty {
			if err := scheduler.NewGenerator(rt).Run(ctx, time.Now()); err != nil {
				return err
			}
			rt.Log.Info("initial batches seeded")
		}
		return nil
	},
}
