package cmd

import (
	"github.com/spf13/cobra"

	"github.com/leeeeey/TaskCenter/src/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scheduler tick: generate, dispatch, execute",
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

		// Tick failures are logged and retried by the next cron
		// invocation; only initialisation failures exit non-zero.
		if err := scheduler.NewCoordinator(rt).Run(ctx); err != nil {
			rt.Log.Error("tick failed", "error", err)
		}
		return nil
	},
}
