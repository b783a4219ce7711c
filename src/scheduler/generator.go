package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leeeeey/TaskCenter/src/database"
	"github.com/leeeeey/TaskCenter/src/model"
)

// Generator projects enabled task definitions forward into concrete batch
// rows, up to a fixed horizon past now. One database transaction envelopes
// a whole pass; any failure rolls the pass back and the next tick retries.
// Re-running is idempotent because task_tag_name is unique.
type Generator struct {
	rt      *Runtime
	horizon time.Duration
}

// NewGenerator creates a generator with the configured horizon.
func NewGenerator(rt *Runtime) *Generator {
	hours := rt.Cfg.Scheduler.HorizonHours
	if hours <= 0 {
		hours = 3
	}
	return &Generator{
		rt:      rt,
		horizon: time.Duration(hours) * time.Hour,
	}
}

// Run emits every missing batch whose window start is at or before
// now + horizon, for each definition enabled in this environment.
func (g *Generator) Run(ctx context.Context, now time.Time) error {
	log := g.rt.logger("generator")

	defs, err := g.rt.Definitions.ListByEnv(ctx, g.rt.Env)
	if err != nil {
		return err
	}

	tx, err := g.rt.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin generation: %w", err)
	}
	defer tx.Rollback()

	limit := now.Add(g.horizon)
	created := 0
	for _, def := range defs {
		n, err := g.extend(ctx, tx, def, now, limit)
		if err != nil {
			return err
		}
		created += n
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit generation: %w", err)
	}
	if created > 0 {
		log.Info("batches generated", "count", created, "definitions", len(defs))
	}
	return nil
}

// extend pushes one definition's batch frontier out to limit. The frontier
// is the highest generated tag; an empty history seeds from the most recent
// fully elapsed window.
func (g *Generator) extend(ctx context.Context, tx *sql.Tx, def *model.TaskDefinition, now, limit time.Time) (int, error) {
	last, err := g.rt.Batches.LastByTaskTx(ctx, tx, def.TaskName)

	var next time.Time
	switch {
	case err == nil:
		start, perr := model.ParseTime(last.StartTime)
		if perr != nil {
			return 0, fmt.Errorf("task %s: %w", def.TaskName, perr)
		}
		next = def.NextStart(start)
	case errors.Is(err, database.ErrNotFound):
		next = def.InitStart(now)
	default:
		return 0, err
	}

	created := 0
	for !next.After(limit) {
		b, err := def.NewBatch(next, 1)
		if err != nil {
			return created, err
		}
		if err := g.rt.Batches.InsertTx(ctx, tx, b); err != nil {
			return created, err
		}
		created++
		next = def.NextStart(next)
	}
	return created, nil
}
