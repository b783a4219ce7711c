package model

import (
	"encoding/json"
	"fmt"
)

// ExecStatus is the lifecycle state of a batch.
type ExecStatus int

const (
	// StatusPending waits for its plan time and dependencies.
	StatusPending ExecStatus = 0
	// StatusAwaitingRetry is a recurring batch recycled after failure.
	StatusAwaitingRetry ExecStatus = 1
	// StatusRunning has exactly one worker claim.
	StatusRunning ExecStatus = 2
	// StatusSucceeded is terminal success.
	StatusSucceeded ExecStatus = 3
	// StatusSucceededAlt is an alternate terminal success, reserved for
	// external writers; the dependency gate accepts it, nothing here
	// writes it.
	StatusSucceededAlt ExecStatus = 4
	// StatusFailed is terminal failure.
	StatusFailed ExecStatus = -1
	// StatusTimedOut exceeded its run deadline.
	StatusTimedOut ExecStatus = -2
)

// IsTerminalSuccess reports whether a dependency on this status is satisfied.
func (s ExecStatus) IsTerminalSuccess() bool {
	return s == StatusSucceeded || s == StatusSucceededAlt
}

// String names the status for logs.
func (s ExecStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAwaitingRetry:
		return "awaiting_retry"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusSucceededAlt:
		return "succeeded_alt"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Batch is one row of task_batch: a task bound to one time window. Rows are
// never deleted; they are the audit log of every window ever scheduled.
type Batch struct {
	ID             int64
	TaskName       string
	TaskTagName    string
	TaskBatchName  string
	ExecStatus     ExecStatus
	Dependence     string // JSON list of upstream tag strings
	StartTime      string // [start, end) window, left-closed right-open
	EndTime        string
	PlanTime       string
	PlanExpireTime string
	ExecTime       string // SentinelTime until claimed
	ExitTime       string // SentinelTime until finished
	Duration       int    // minutes, ceiling
	Retry          int    // attempts completed beyond the first
}

// DependTags parses the frozen dependency tag list.
func (b *Batch) DependTags() ([]string, error) {
	if b.Dependence == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(b.Dependence), &tags); err != nil {
		return nil, fmt.Errorf("batch %s: parse dependence: %w", b.TaskBatchName, err)
	}
	return tags, nil
}

// Interval returns the batch window as an epoch-second interval.
func (b *Batch) Interval() (Interval, error) {
	start, err := ParseTime(b.StartTime)
	if err != nil {
		return Interval{}, fmt.Errorf("batch %s: parse start_time: %w", b.TaskBatchName, err)
	}
	end, err := ParseTime(b.EndTime)
	if err != nil {
		return Interval{}, fmt.Errorf("batch %s: parse end_time: %w", b.TaskBatchName, err)
	}
	return Interval{TsStart: start.Unix(), TsEnd: end.Unix()}, nil
}
