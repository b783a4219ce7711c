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

// ReadyBatch is a claimed batch enriched with the definition fields the
// executor needs. It is a snapshot: workers never touch shared state after
// dispatch closes.
type ReadyBatch struct {
	model.Batch

	TaskType      model.TaskType
	Script        string
	ScriptArgs    string
	RunExpire     int // minutes
	RetryMaxTimes int
}

// Dispatcher atomically selects up to taskNum batches whose plan time has
// arrived and whose dependencies are satisfied, and claims them. The whole
// walk runs in one transaction holding row locks on the candidates, so
// concurrent coordinators serialize.
type Dispatcher struct {
	rt      *Runtime
	taskNum int
}

// NewDispatcher creates a dispatcher claiming up to taskNum batches.
func NewDispatcher(rt *Runtime, taskNum int) *Dispatcher {
	return &Dispatcher{rt: rt, taskNum: taskNum}
}

// Dispatch claims the ready set for this tick.
//
// Candidates are walked in plan_time order. A recurring candidate whose
// start grace elapsed is demoted to failed with an alert and skipped. A
// candidate with an unsatisfied dependency is skipped without mutation.
// Everything else is marked running and returned, until the cap is hit.
func (d *Dispatcher) Dispatch(ctx context.Context, now time.Time) ([]*ReadyBatch, error) {
	log := d.rt.logger("dispatcher")
	nowStr := model.FormatTime(now)

	defs, err := d.rt.Definitions.ListByEnv(ctx, d.rt.Env)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, nil
	}
	byName := make(map[string]*model.TaskDefinition, len(defs))
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		byName[def.TaskName] = def
		names = append(names, def.TaskName)
	}

	tx, err := d.rt.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin dispatch: %w", err)
	}
	defer tx.Rollback()

	candidates, err := d.rt.Batches.ClaimDueTx(ctx, tx, names, nowStr)
	if err != nil {
		return nil, err
	}
	log.Info("due candidates", "count", len(candidates))

	var ready []*ReadyBatch
	for _, b := range candidates {
		if len(ready) == d.taskNum {
			break
		}

		// Recurring batch that never started inside its grace period.
		if b.ExecStatus == model.StatusAwaitingRetry && b.PlanExpireTime < nowStr {
			if err := d.rt.Batches.MarkFailedTx(ctx, tx, b.ID); err != nil {
				return nil, err
			}
			d.rt.audit(b.TaskBatchName, b.ExecStatus, model.StatusFailed, "start expired")
			d.rt.notify(b.TaskBatchName)
			continue
		}

		ok, err := d.dependenciesMet(ctx, tx, b)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		def, found := byName[b.TaskName]
		if !found {
			// Definition disappeared between snapshot and walk; leave the
			// batch untouched for a later tick.
			continue
		}

		if err := d.rt.Batches.MarkRunningTx(ctx, tx, b.ID, nowStr); err != nil {
			return nil, err
		}
		d.rt.audit(b.TaskBatchName, b.ExecStatus, model.StatusRunning, "claimed")

		claimed := *b
		claimed.ExecStatus = model.StatusRunning
		claimed.ExecTime = nowStr
		ready = append(ready, &ReadyBatch{
			Batch:         claimed,
			TaskType:      def.TaskType,
			Script:        def.Script,
			ScriptArgs:    def.ScriptArgs,
			RunExpire:     def.RunExpire,
			RetryMaxTimes: def.RetryMaxTimes,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dispatch: %w", err)
	}
	log.Info("batches claimed", "count", len(ready))
	return ready, nil
}

// dependenciesMet checks every frozen dependency tag: its latest batch
// must exist and be in terminal success.
func (d *Dispatcher) dependenciesMet(ctx context.Context, tx *sql.Tx, b *model.Batch) (bool, error) {
	tags, err := b.DependTags()
	if err != nil {
		return false, err
	}
	for _, tag := range tags {
		upstream, err := d.rt.Batches.LatestByTagTx(ctx, tx, tag)
		if errors.Is(err, database.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !upstream.ExecStatus.IsTerminalSuccess() {
			return false, nil
		}
	}
	return true, nil
}
