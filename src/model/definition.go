package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskType controls what happens when a batch exhausts its retries.
type TaskType int

const (
	// TypeOneShot marks failure terminal.
	TypeOneShot TaskType = 0
	// TypeRecurring recycles a failed batch back into the queue.
	TypeRecurring TaskType = 1
)

// EnvType gates which definitions a process generates and dispatches.
type EnvType int

const (
	EnvTest       EnvType = 1
	EnvProduction EnvType = 2
)

// Dependence declares one upstream batch that must have completed before a
// batch of this task may run. Offset is [days, hours, minutes] applied to
// the downstream window start before deriving the upstream tag.
type Dependence struct {
	TaskName string   `json:"task_name"`
	ExecUnit ExecUnit `json:"exec_unit"`
	Offset   [3]int   `json:"offset"`
}

// TaskDefinition is one row of task_info: an operator-registered task whose
// windows the generator projects forward into batches.
type TaskDefinition struct {
	ID            int64
	TaskName      string
	TaskType      TaskType
	Online        EnvType
	Dependence    string // JSON list of Dependence entries
	Script        string
	ScriptArgs    string
	ExecUnit      ExecUnit
	ExecUnitParam int
	Delay         int // minutes from window end to plan_time
	StartExpire   int // minutes of grace after plan_time
	RunExpire     int // minutes of wall clock once running
	RetryMaxTimes int
	CreateTime    string
	UpdateTime    string
}

// Dependences parses the raw dependence column. An empty column means no
// dependencies.
func (d *TaskDefinition) Dependences() ([]Dependence, error) {
	if d.Dependence == "" {
		return nil, nil
	}
	var deps []Dependence
	if err := json.Unmarshal([]byte(d.Dependence), &deps); err != nil {
		return nil, fmt.Errorf("task %s: parse dependence: %w", d.TaskName, err)
	}
	return deps, nil
}

// Stride returns the gap between consecutive window starts.
func (d *TaskDefinition) Stride() time.Duration {
	return time.Duration(d.ExecUnitParam) * d.ExecUnit.Duration()
}

// NextStart returns the start of the window after one starting at start.
func (d *TaskDefinition) NextStart(start time.Time) time.Time {
	return start.Add(d.Stride())
}

// WindowEnd returns the end of the window starting at start. The window is
// always exactly one unit wide; for ExecUnitParam > 1 this leaves gaps
// between consecutive windows. Intentional: strided tasks aggregate one
// bucket per stride.
func (d *TaskDefinition) WindowEnd(start time.Time) time.Time {
	return start.Add(d.ExecUnit.Duration())
}

// InitStart seeds generation when the task has no batches yet.
func (d *TaskDefinition) InitStart(now time.Time) time.Time {
	return InitWindowStart(d.ExecUnit, now)
}

// PlanTime is the earliest moment a batch of this window may be dispatched.
func (d *TaskDefinition) PlanTime(end time.Time) time.Time {
	return end.Add(time.Duration(d.Delay) * time.Minute)
}

// PlanExpireTime is the moment past which a never-started recurring batch is
// declared failed. Only meaningful for recurring tasks.
func (d *TaskDefinition) PlanExpireTime(end time.Time) time.Time {
	return end.Add(time.Duration(d.Delay+d.StartExpire) * time.Minute)
}

// DependTags freezes the dependency tag list for a window starting at start.
func (d *TaskDefinition) DependTags(start time.Time) ([]string, error) {
	deps, err := d.Dependences()
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(deps))
	for _, dep := range deps {
		offset := time.Duration(dep.Offset[0])*24*time.Hour +
			time.Duration(dep.Offset[1])*time.Hour +
			time.Duration(dep.Offset[2])*time.Minute
		tags = append(tags, TagName(dep.TaskName, start.Add(offset), dep.ExecUnit))
	}
	return tags, nil
}

// NewBatch materialises the batch row for the window starting at start.
func (d *TaskDefinition) NewBatch(start time.Time, batchNum int) (*Batch, error) {
	tags, err := d.DependTags(start)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("task %s: marshal dependence tags: %w", d.TaskName, err)
	}

	end := d.WindowEnd(start)
	tag := TagName(d.TaskName, start, d.ExecUnit)
	return &Batch{
		TaskName:       d.TaskName,
		TaskTagName:    tag,
		TaskBatchName:  fmt.Sprintf("%s_%d", tag, batchNum),
		ExecStatus:     StatusPending,
		Dependence:     string(raw),
		StartTime:      FormatTime(start),
		EndTime:        FormatTime(end),
		PlanTime:       FormatTime(d.PlanTime(end)),
		PlanExpireTime: FormatTime(d.PlanExpireTime(end)),
		ExecTime:       SentinelTime,
		ExitTime:       SentinelTime,
	}, nil
}
