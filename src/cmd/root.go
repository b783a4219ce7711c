// Package cmd implements the taskcenter CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leeeeey/TaskCenter/src/alert"
	"github.com/leeeeey/TaskCenter/src/config"
	"github.com/leeeeey/TaskCenter/src/database"
	"github.com/leeeeey/TaskCenter/src/lock"
	"github.com/leeeeey/TaskCenter/src/logging"
	"github.com/leeeeey/TaskCenter/src/scheduler"
	"github.com/leeeeey/TaskCenter/src/script"
)

var (
	cfgFile  string
	taskNum  int
	logLevel string
)

// Scripts is the registry the executor resolves task scripts from.
// Embedding programs register their scripts here before calling Execute.
var Scripts = script.NewRegistry()

var rootCmd = &cobra.Command{
	Use:   "taskcenter",
	Short: "Periodic-batch task scheduler",
	Long: `taskcenter materialises time-bucketed batches for registered task
definitions, dispatches ready batches across a worker pool, and enforces
start and run deadlines with retries and dependency gating.

One tick is one invocation of "taskcenter run"; cadence is driven by an
external cron.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default taskcenter.yml)")
	rootCmd.PersistentFlags().IntVar(&taskNum, "task-num", 0, "parallel batches per tick (0 = CPU count)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	viper.BindPFlag("scheduler.task_num", rootCmd.PersistentFlags().Lookup("task-num"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.SetEnvPrefix("TASKCENTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI. Non-zero exit is reserved for unrecoverable
// initialisation failures; batch outcomes are data, not exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves configuration: file, then environment, then flags.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = "taskcenter.yml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	// Flag and TASKCENTER_* overrides, highest priority.
	if v := viper.GetInt("scheduler.task_num"); v > 0 {
		cfg.Scheduler.TaskNum = v
	}
	if v := viper.GetString("logging.level"); v != "" {
		cfg.Logging.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRuntime connects external services and assembles the scheduler
// runtime. The returned cleanup closes every connection.
func buildRuntime(ctx context.Context, cfg *config.Config) (*scheduler.Runtime, func(), error) {
	log := logging.Init(&cfg.Logging)
	env := config.ResolveEnv()
	log.Info("starting", "env", env.Name, "version", config.Version)

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("database unreachable: %w", err)
	}

	var locks *lock.Service
	if cfg.Redis.Address != "" {
		locks, err = lock.New(ctx, &cfg.Redis)
		if err != nil {
			// The tick lease is an overlap guard, not a correctness
			// requirement; the dispatcher's row locks still hold.
			log.Warn("lock service unavailable, running without tick lease", "error", err)
			locks = nil
		}
	}

	audit := logging.NewAuditLogger(cfg.Logging.Audit)
	rt := &scheduler.Runtime{
		Cfg:         cfg,
		Env:         env.Type,
		DB:          db,
		Definitions: database.NewDefinitionStore(db),
		Batches:     database.NewBatchStore(db),
		Scripts:     Scripts,
		Notifier:    alert.NewWebhookNotifier(&cfg.Alert, log),
		Locks:       locks,
		Audit:       audit,
		Log:         log,
	}

	cleanup := func() {
		audit.Close()
		if locks != nil {
			locks.Close()
		}
		db.Close()
	}
	return rt, cleanup, nil
}
