package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leeeeey/TaskCenter/src/lock"
)

// Coordinator runs one tick: generate, dispatch, execute. Cadence is
// externally driven - a cron-like caller invokes Run each minute; there is
// no internal sleep loop. The system assumes a single coordinator per
// environment; the redis tick lease enforces that when configured, and the
// dispatcher's row locks are the backstop if it is violated.
type Coordinator struct {
	rt   *Runtime
	gen  *Generator
	disp *Dispatcher
	exec *Executor
}

// NewCoordinator wires the tick phases. Parallelism is the configured
// task_num, defaulting to the host's CPU count.
func NewCoordinator(rt *Runtime) *Coordinator {
	taskNum := rt.Cfg.EffectiveTaskNum()
	return &Coordinator{
		rt:   rt,
		gen:  NewGenerator(rt),
		disp: NewDispatcher(rt, taskNum),
		exec: NewExecutor(rt, taskNum),
	}
}

// Run executes one tick and returns when every claimed batch has reached a
// terminal state or been abandoned.
func (c *Coordinator) Run(ctx context.Context) error {
	log := c.rt.logger("coordinator")
	now := time.Now()

	if c.rt.Locks != nil {
		ttl := time.Duration(c.rt.Cfg.Scheduler.LockTTL) * time.Second
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		lease, err := c.rt.Locks.Acquire(ctx, fmt.Sprintf("taskcenter:tick:%d", c.rt.Env), ttl, 5*time.Second)
		if errors.Is(err, lock.ErrNotAcquired) {
			// A previous tick is still running; skip this one.
			log.Warn("tick lease held elsewhere, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
				log.Warn("tick lease release failed", "error", rerr)
			}
		}()
	}

	if err := c.gen.Run(ctx, now); err != nil {
		log.Error("generation failed, tick aborted", "error", err)
		return err
	}

	ready, err := c.disp.Dispatch(ctx, now)
	if err != nil {
		log.Error("dispatch failed, tick aborted", "error", err)
		return err
	}

	log.Info("tick executing", "batches", len(ready))
	c.exec.Execute(ctx, now, ready)
	return nil
}
