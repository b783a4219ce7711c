package model

import (
	"testing"
)

func minuteDef() *TaskDefinition {
	return &TaskDefinition{
		TaskName:      "t",
		TaskType:      TypeRecurring,
		Online:        EnvTest,
		ExecUnit:      UnitMinute,
		ExecUnitParam: 5,
		Delay:         0,
		StartExpire:   10,
		RunExpire:     1,
		RetryMaxTimes: 2,
	}
}

func TestStrideAndWindowEnd(t *testing.T) {
	d := minuteDef()
	start := mustTime(t, "2024-01-01 00:06:00")

	next := d.NextStart(start)
	if FormatTime(next) != "2024-01-01 00:11:00" {
		t.Errorf("NextStart = %s, want 2024-01-01 00:11:00", FormatTime(next))
	}

	// The window stays one unit wide even though the stride is five.
	end := d.WindowEnd(start)
	if FormatTime(end) != "2024-01-01 00:07:00" {
		t.Errorf("WindowEnd = %s, want 2024-01-01 00:07:00", FormatTime(end))
	}
}

func TestPlanTimes(t *testing.T) {
	d := minuteDef()
	d.Delay = 3
	end := mustTime(t, "2024-01-01 00:07:00")

	if got := FormatTime(d.PlanTime(end)); got != "2024-01-01 00:10:00" {
		t.Errorf("PlanTime = %s, want 2024-01-01 00:10:00", got)
	}
	if got := FormatTime(d.PlanExpireTime(end)); got != "2024-01-01 00:20:00" {
		t.Errorf("PlanExpireTime = %s, want 2024-01-01 00:20:00", got)
	}
}

func TestDependTags(t *testing.T) {
	d := &TaskDefinition{
		TaskName:      "a",
		ExecUnit:      UnitHour,
		ExecUnitParam: 1,
		Dependence:    `[{"task_name":"b","exec_unit":"hour","offset":[0,-1,0]}]`,
	}
	start := mustTime(t, "2024-01-01 05:00:00")

	tags, err := d.DependTags(start)
	if err != nil {
		t.Fatalf("DependTags: %v", err)
	}
	if len(tags) != 1 || tags[0] != "b_2024010104" {
		t.Errorf("DependTags = %v, want [b_2024010104]", tags)
	}
}

func TestDependTagsCrossUnit(t *testing.T) {
	// An hourly task depending on the previous day's daily rollup.
	d := &TaskDefinition{
		TaskName:      "hourly",
		ExecUnit:      UnitHour,
		ExecUnitParam: 1,
		Dependence:    `[{"task_name":"daily","exec_unit":"day","offset":[-1,0,0]}]`,
	}
	start := mustTime(t, "2024-03-10 06:00:00")

	tags, err := d.DependTags(start)
	if err != nil {
		t.Fatalf("DependTags: %v", err)
	}
	if len(tags) != 1 || tags[0] != "daily_20240309" {
		t.Errorf("DependTags = %v, want [daily_20240309]", tags)
	}
}

func TestNewBatch(t *testing.T) {
	d := minuteDef()
	start := mustTime(t, "2024-01-01 00:06:00")

	b, err := d.NewBatch(start, 1)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if b.TaskTagName != "t_202401010006" {
		t.Errorf("TaskTagName = %q, want t_202401010006", b.TaskTagName)
	}
	if b.TaskBatchName != "t_202401010006_1" {
		t.Errorf("TaskBatchName = %q, want t_202401010006_1", b.TaskBatchName)
	}
	if b.ExecStatus != StatusPending {
		t.Errorf("ExecStatus = %v, want pending", b.ExecStatus)
	}
	if b.StartTime != "2024-01-01 00:06:00" || b.EndTime != "2024-01-01 00:07:00" {
		t.Errorf("window = [%s, %s)", b.StartTime, b.EndTime)
	}
	if b.PlanTime != "2024-01-01 00:07:00" {
		t.Errorf("PlanTime = %q, want 2024-01-01 00:07:00", b.PlanTime)
	}
	if b.PlanExpireTime != "2024-01-01 00:17:00" {
		t.Errorf("PlanExpireTime = %q, want 2024-01-01 00:17:00", b.PlanExpireTime)
	}
	if b.ExecTime != SentinelTime || b.ExitTime != SentinelTime {
		t.Errorf("exec/exit = %q/%q, want sentinels", b.ExecTime, b.ExitTime)
	}
	if b.Dependence != "[]" {
		t.Errorf("Dependence = %q, want []", b.Dependence)
	}
}

func TestBatchDependTags(t *testing.T) {
	b := &Batch{TaskBatchName: "x_1", Dependence: `["b_2024010104"]`}
	tags, err := b.DependTags()
	if err != nil {
		t.Fatalf("DependTags: %v", err)
	}
	if len(tags) != 1 || tags[0] != "b_2024010104" {
		t.Errorf("DependTags = %v", tags)
	}

	empty := &Batch{TaskBatchName: "y_1"}
	tags, err = empty.DependTags()
	if err != nil || tags != nil {
		t.Errorf("empty DependTags = %v, %v", tags, err)
	}
}

func TestIntervalForms(t *testing.T) {
	b := &Batch{
		TaskBatchName: "t_202401010006_1",
		StartTime:     "2024-01-01 00:06:00",
		EndTime:       "2024-01-01 00:07:00",
	}
	iv, err := b.Interval()
	if err != nil {
		t.Fatalf("Interval: %v", err)
	}
	if iv.TsEnd-iv.TsStart != 60 {
		t.Errorf("interval width = %d, want 60", iv.TsEnd-iv.TsStart)
	}

	s, e := iv.Epochs(true)
	if e != s+59 {
		t.Errorf("closed epochs = (%d, %d)", s, e)
	}

	ss, es := iv.Strings("", false)
	if ss != "2024-01-01 00:06:00" || es != "2024-01-01 00:07:00" {
		t.Errorf("Strings = (%q, %q)", ss, es)
	}
	_, ec := iv.Strings("", true)
	if ec != "2024-01-01 00:06:59" {
		t.Errorf("closed end = %q, want 2024-01-01 00:06:59", ec)
	}
}

func TestExecStatusTerminalSuccess(t *testing.T) {
	tests := []struct {
		status ExecStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusAwaitingRetry, false},
		{StatusRunning, false},
		{StatusSucceeded, true},
		{StatusSucceededAlt, true},
		{StatusFailed, false},
		{StatusTimedOut, false},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminalSuccess(); got != tt.want {
			t.Errorf("IsTerminalSuccess(%v) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
