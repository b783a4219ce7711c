package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leeeeey/TaskCenter/src/model"
	"github.com/leeeeey/TaskCenter/src/script"
)

// fakeScript counts invocations and fails a configured number of times.
type fakeScript struct {
	mu        sync.Mutex
	runs      int
	successes int
	failures  int
	failFirst int           // attempts that fail before succeeding; -1 fails forever
	sleep     time.Duration // RunTask duration, ignoring ctx
}

func (s *fakeScript) RunTask(ctx context.Context, iv model.Interval, args, tag string) error {
	s.mu.Lock()
	s.runs++
	n := s.runs
	s.mu.Unlock()
	if s.sleep > 0 {
		time.Sleep(s.sleep)
	}
	if s.failFirst < 0 || n <= s.failFirst {
		return errors.New("boom")
	}
	return nil
}

func (s *fakeScript) RunSuccessCallback(iv model.Interval, batch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes++
	return nil
}

func (s *fakeScript) RunFailureCallback(iv model.Interval, batch string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return nil
}

func (s *fakeScript) counts() (runs, successes, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.successes, s.failures
}

// dispatchOne generates and dispatches a single ready batch for a task
// wired to the given script.
func dispatchOne(t *testing.T, rt *Runtime, def *model.TaskDefinition, scr script.Script) *ReadyBatch {
	t.Helper()
	rt.Scripts.Register(def.Script, func() script.Script { return scr })
	insertDef(t, rt, def)

	now, _ := model.ParseTime("2024-01-01 00:07:00")
	if err := NewGenerator(rt).Run(context.Background(), now); err != nil {
		t.Fatal(err)
	}
	ready, err := NewDispatcher(rt, 1).Dispatch(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 1 {
		t.Fatalf("dispatched %d batches, want 1", len(ready))
	}
	return ready[0]
}

func fastExecutor(rt *Runtime) *Executor {
	e := NewExecutor(rt, 2)
	e.retrySleep = 5 * time.Millisecond
	return e
}

func TestExecutorSuccess(t *testing.T) {
	rt, notifier := newTestRuntime(t)
	scr := &fakeScript{}
	rb := dispatchOne(t, rt, &model.TaskDefinition{
		TaskName: "ok", TaskType: model.TypeOneShot, Online: model.EnvTest,
		Script: "ok_script", ExecUnit: model.UnitMinute, ExecUnitParam: 1,
		RunExpire: 1, RetryMaxTimes: 2,
	}, scr)

	fastExecutor(rt).Execute(context.Background(), time.Now(), []*ReadyBatch{rb})

	runs, successes, _ := scr.counts()
	if runs != 1 || successes != 1 {
		t.Errorf("runs=%d successes=%d, want 1/1", runs, successes)
	}

	got, err := rt.Batches.Get(context.Background(), rb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExecStatus != model.StatusSucceeded {
		t.Errorf("status = %v, want succeeded", got.ExecStatus)
	}
	if got.ExitTime == model.SentinelTime {
		t.Error("exit_time not written")
	}
	if notifier.count() != 0 {
		t.Errorf("alerts fired on success: %d", notifier.count())
	}
}

func TestExecutorOneShotExhaust(t *testing.T) {
	rt, notifier := newTestRuntime(t)
	scr := &fakeScript{failFirst: -1}
	rb := dispatchOne(t, rt, &model.TaskDefinition{
		TaskName: "boom", TaskType: model.TypeOneShot, Online: model.EnvTest,
		Script: "boom_script", ExecUnit: model.UnitMinute, ExecUnitParam: 1,
		RunExpire: 1, RetryMaxTimes: 2,
	}, scr)

	fastExecutor(rt).Execute(context.Background(), time.Now(), []*ReadyBatch{rb})

	// First attempt plus two retries.
	runs, _, failures := scr.counts()
	if runs != 3 || failures != 3 {
		t.Errorf("runs=%d failures=%d, want 3/3", runs, failures)
	}

	got, err := rt.Batches.Get(context.Background(), rb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExecStatus != model.StatusFailed {
		t.Errorf("status = %v, want failed", got.ExecStatus)
	}
	if got.Retry != 2 {
		t.Errorf("persisted retry = %d, want 2", got.Retry)
	}
	if notifier.count() != 1 {
		t.Errorf("alerts = %d, want 1", notifier.count())
	}
}

func TestExecutorRecurringReset(t *testing.T) {
	rt, notifier := newTestRuntime(t)
	scr := &fakeScript{failFirst: -1}
	rb := dispatchOne(t, rt, &model.TaskDefinition{
		TaskName: "loop", TaskType: model.TypeRecurring, Online: model.EnvTest,
		Script: "loop_script", ExecUnit: model.UnitMinute, ExecUnitParam: 1,
		StartExpire: 60, RunExpire: 1, RetryMaxTimes: 1,
	}, scr)

	fastExecutor(rt).Execute(context.Background(), time.Now(), []*ReadyBatch{rb})

	got, err := rt.Batches.Get(context.Background(), rb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExecStatus != model.StatusAwaitingRetry {
		t.Errorf("status = %v, want awaiting_retry", got.ExecStatus)
	}
	if got.Retry != 0 || got.Duration != 0 {
		t.Errorf("retry=%d duration=%d, want 0/0", got.Retry, got.Duration)
	}
	if got.ExecTime != model.SentinelTime {
		t.Errorf("exec_time = %q, want sentinel", got.ExecTime)
	}
	if got.ExitTime == model.SentinelTime {
		t.Error("exit_time not written")
	}
	// Recurring exhaustion alerts nothing; only start expiry does.
	if notifier.count() != 0 {
		t.Errorf("alerts = %d, want 0", notifier.count())
	}
}

func TestExecutorTimeout(t *testing.T) {
	oldUnit := runExpireUnit
	runExpireUnit = 50 * time.Millisecond
	defer func() { runExpireUnit = oldUnit }()

	rt, _ := newTestRuntime(t)
	scr := &fakeScript{sleep: 500 * time.Millisecond}
	rb := dispatchOne(t, rt, &model.TaskDefinition{
		TaskName: "slow", TaskType: model.TypeOneShot, Online: model.EnvTest,
		Script: "slow_script", ExecUnit: model.UnitMinute, ExecUnitParam: 1,
		RunExpire: 1, RetryMaxTimes: 0,
	}, scr)

	start := time.Now()
	fastExecutor(rt).Execute(context.Background(), start, []*ReadyBatch{rb})
	if elapsed := time.Since(start); elapsed >= 400*time.Millisecond {
		t.Errorf("executor waited %v, deadline not enforced", elapsed)
	}

	got, err := rt.Batches.Get(context.Background(), rb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExecStatus != model.StatusTimedOut {
		t.Errorf("status = %v, want timed_out", got.ExecStatus)
	}
}

func TestExecutorScriptMiss(t *testing.T) {
	rt, notifier := newTestRuntime(t)
	insertDef(t, rt, &model.TaskDefinition{
		TaskName: "ghost", TaskType: model.TypeOneShot, Online: model.EnvTest,
		Script: "unregistered", ExecUnit: model.UnitMinute, ExecUnitParam: 1,
		RunExpire: 1, RetryMaxTimes: 5,
	})

	now, _ := model.ParseTime("2024-01-01 00:07:00")
	if err := NewGenerator(rt).Run(context.Background(), now); err != nil {
		t.Fatal(err)
	}
	ready, err := NewDispatcher(rt, 1).Dispatch(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}

	fastExecutor(rt).Execute(context.Background(), time.Now(), ready)

	got, err := rt.Batches.Get(context.Background(), ready[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExecStatus != model.StatusFailed {
		t.Errorf("status = %v, want failed", got.ExecStatus)
	}
	if got.Retry != 0 {
		t.Errorf("retry = %d, want 0 (no retries on registry miss)", got.Retry)
	}
	if notifier.count() != 1 {
		t.Errorf("alerts = %d, want 1", notifier.count())
	}
}

func TestExecutorSuccessCallbackFailureCountsAsAttempt(t *testing.T) {
	rt, _ := newTestRuntime(t)
	scr := &callbackFailScript{}
	rb := dispatchOne(t, rt, &model.TaskDefinition{
		TaskName: "cb", TaskType: model.TypeOneShot, Online: model.EnvTest,
		Script: "cb_script", ExecUnit: model.UnitMinute, ExecUnitParam: 1,
		RunExpire: 1, RetryMaxTimes: 0,
	}, scr)

	fastExecutor(rt).Execute(context.Background(), time.Now(), []*ReadyBatch{rb})

	got, err := rt.Batches.Get(context.Background(), rb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExecStatus != model.StatusFailed {
		t.Errorf("status = %v, want failed when success callback errors", got.ExecStatus)
	}
	if scr.failureCalls != 1 {
		t.Errorf("failure callback calls = %d, want 1", scr.failureCalls)
	}
}

// callbackFailScript succeeds its body but fails the success callback.
type callbackFailScript struct {
	script.Base
	failureCalls int
}

func (s *callbackFailScript) RunTask(ctx context.Context, iv model.Interval, args, tag string) error {
	return nil
}

func (s *callbackFailScript) RunSuccessCallback(iv model.Interval, batch string) error {
	return errors.New("callback boom")
}

func (s *callbackFailScript) RunFailureCallback(iv model.Interval, batch string, err error) error {
	s.failureCalls++
	return nil
}

func TestCoordinatorTick(t *testing.T) {
	rt, _ := newTestRuntime(t)
	scr := &fakeScript{}
	rt.Scripts.Register("tick_script", func() script.Script { return scr })
	insertDef(t, rt, &model.TaskDefinition{
		TaskName: "tick", TaskType: model.TypeOneShot, Online: model.EnvTest,
		Script: "tick_script", ExecUnit: model.UnitMinute, ExecUnitParam: 1,
		RunExpire: 1, RetryMaxTimes: 0,
	})

	c := NewCoordinator(rt)
	c.exec.retrySleep = 5 * time.Millisecond
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	runs, successes, _ := scr.counts()
	if runs == 0 || successes == 0 {
		t.Fatalf("script never ran: runs=%d successes=%d", runs, successes)
	}

	succeeded := 0
	for _, b := range allBatches(t, rt, "tick") {
		if b.ExecStatus == model.StatusSucceeded {
			succeeded++
			if b.ExecTime == model.SentinelTime {
				t.Error("succeeded batch never passed through running")
			}
		}
	}
	if succeeded == 0 {
		t.Error("no batch reached terminal success")
	}
}
