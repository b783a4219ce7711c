package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/leeeeey/TaskCenter/src/model"
)

// runExpireUnit is a testable variable: run_expire counts these units.
var runExpireUnit = time.Minute

// Executor runs claimed batches in parallel, each on its own worker with
// its own database round-trips. A batch gets a retry loop bounded by the
// definition's retry budget and a wall-clock deadline of run_expire minutes
// from dispatch; past the deadline the attempt loop is abandoned, not
// killed.
type Executor struct {
	rt         *Runtime
	taskNum    int
	retrySleep time.Duration
}

// NewExecutor creates an executor running up to taskNum batches at once.
func NewExecutor(rt *Runtime, taskNum int) *Executor {
	sleep := 5 * time.Second
	if rt.Cfg != nil && rt.Cfg.Scheduler.RetrySleep > 0 {
		sleep = time.Duration(rt.Cfg.Scheduler.RetrySleep) * time.Second
	}
	return &Executor{rt: rt, taskNum: taskNum, retrySleep: sleep}
}

// Execute runs every ready batch and blocks until each has a terminal
// status written (or has been abandoned past its deadline).
func (e *Executor) Execute(ctx context.Context, tickStart time.Time, ready []*ReadyBatch) {
	if len(ready) == 0 {
		return
	}

	sem := make(chan struct{}, e.taskNum)
	var wg sync.WaitGroup
	for _, rb := range ready {
		wg.Add(1)
		sem <- struct{}{}
		go func(rb *ReadyBatch) {
			defer wg.Done()
			defer func() { <-sem }()
			e.executeOne(ctx, tickStart, rb)
		}(rb)
	}
	wg.Wait()
}

// attempt carries the state shared between a worker and its attempt loop.
type attempt struct {
	mu      sync.Mutex
	success bool
	done    bool
}

func (a *attempt) markSuccess() {
	a.mu.Lock()
	a.success = true
	a.mu.Unlock()
}

func (a *attempt) markDone() {
	a.mu.Lock()
	a.done = true
	a.mu.Unlock()
}

// snapshot reads (success, alive) together under the lock. A loop that
// finishes after the snapshot but before the terminal write is still
// recorded from the snapshot (for example as timed out); accepted.
func (a *attempt) snapshot() (bool, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.success, !a.done
}

// executeOne drives a single batch to a terminal state.
func (e *Executor) executeOne(ctx context.Context, tickStart time.Time, rb *ReadyBatch) {
	log := e.rt.logger("executor").With("batch", rb.TaskBatchName)

	scr, err := e.rt.Scripts.Resolve(rb.Script)
	if err != nil {
		// Registry miss: terminal failure with alert, no retries.
		log.Error("script unresolved", "script", rb.Script, "error", err)
		e.finish(ctx, rb, model.StatusFailed, tickStart, "script unresolved")
		e.rt.notify(rb.TaskBatchName)
		return
	}

	interval, err := rb.Interval()
	if err != nil {
		log.Error("bad batch window", "error", err)
		e.finish(ctx, rb, model.StatusFailed, tickStart, "bad window")
		return
	}

	a := &attempt{}
	runCtx, cancel := context.WithCancel(ctx)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer a.markDone()
		e.attemptLoop(runCtx, rb, scr, interval, a)
	}()

	// Bounded join: wait for the loop up to run_expire minutes of wall
	// clock from dispatch.
	deadline := time.Duration(rb.RunExpire) * runExpireUnit
	timer := time.NewTimer(deadline)
	select {
	case <-finished:
		timer.Stop()
	case <-timer.C:
	}

	success, alive := a.snapshot()
	exitTime := time.Now()

	var status model.ExecStatus
	var detail string
	switch {
	case success:
		status, detail = model.StatusSucceeded, "succeeded"
	case rb.TaskType == model.TypeRecurring:
		// Recurring batches loop back into the queue whatever went wrong.
		status, detail = model.StatusAwaitingRetry, "recycled"
	case alive:
		status, detail = model.StatusTimedOut, "run expired"
	default:
		status, detail = model.StatusFailed, "attempts exhausted"
	}

	if status == model.StatusAwaitingRetry {
		if err := e.rt.Batches.ResetRecurring(ctx, rb.ID, model.FormatTime(exitTime)); err != nil {
			log.Error("terminal update failed", "error", err)
		}
	} else {
		duration := ceilMinutes(exitTime.Sub(tickStart))
		if err := e.rt.Batches.Finish(ctx, rb.ID, status, duration, model.FormatTime(exitTime)); err != nil {
			// The batch stays running until an operator or start-expiry
			// rescues it.
			log.Error("terminal update failed", "error", err)
		}
	}
	e.rt.audit(rb.TaskBatchName, model.StatusRunning, status, detail)
	log.Info("batch finished", "status", status.String())

	// Abandon the attempt loop. The script may still complete later; its
	// result is ignored.
	cancel()
}

// attemptLoop runs the script until success or the retry budget is spent.
func (e *Executor) attemptLoop(ctx context.Context, rb *ReadyBatch, scr scriptRunner, interval model.Interval, a *attempt) {
	log := e.rt.logger("executor").With("batch", rb.TaskBatchName)
	retry := rb.Retry

	for {
		if retry > 0 {
			log.Info("retrying", "attempt", retry)
		}

		err := scr.RunTask(ctx, interval, rb.ScriptArgs, rb.TaskTagName)
		if err == nil {
			err = scr.RunSuccessCallback(interval, rb.TaskBatchName)
			if err == nil {
				a.markSuccess()
				log.Info("script succeeded")
				return
			}
		}

		// Failure callbacks that themselves fail are logged and dropped;
		// they never re-enter the retry machinery.
		if cbErr := scr.RunFailureCallback(interval, rb.TaskBatchName, err); cbErr != nil {
			log.Error("failure callback failed", "error", cbErr)
		}
		log.Error("script failed", "attempt", retry, "error", err)

		// The first execution does not count against the budget.
		retry++
		if retry > rb.RetryMaxTimes {
			if rb.TaskType == model.TypeOneShot {
				e.rt.notify(rb.TaskBatchName)
			}
			return
		}
		if err := e.rt.Batches.UpdateRetry(ctx, rb.ID, retry); err != nil {
			// Persisting the counter failed; abandon the remaining
			// attempts.
			log.Error("retry update failed", "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.retrySleep):
		}
	}
}

// finish writes a terminal state outside the attempt machinery.
func (e *Executor) finish(ctx context.Context, rb *ReadyBatch, status model.ExecStatus, tickStart time.Time, detail string) {
	exitTime := time.Now()
	duration := ceilMinutes(exitTime.Sub(tickStart))
	if err := e.rt.Batches.Finish(ctx, rb.ID, status, duration, model.FormatTime(exitTime)); err != nil {
		e.rt.logger("executor").Error("terminal update failed", "batch", rb.TaskBatchName, "error", err)
	}
	e.rt.audit(rb.TaskBatchName, model.StatusRunning, status, detail)
}

// ceilMinutes converts elapsed wall clock to whole minutes, rounding up.
func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds() / 60))
}

// scriptRunner is the executor-side view of a script.
type scriptRunner interface {
	RunTask(ctx context.Context, interval model.Interval, scriptArgs, taskTagName string) error
	RunSuccessCallback(interval model.Interval, taskBatchName string) error
	RunFailureCallback(interval model.Interval, taskBatchName string, runErr error) error
}
