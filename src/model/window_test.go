package model

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime(%q) = %v", s, err)
	}
	return tm
}

func TestExecUnitSeconds(t *testing.T) {
	tests := []struct {
		unit ExecUnit
		want int64
	}{
		{UnitMinute, 60},
		{UnitHour, 3600},
		{UnitDay, 86400},
		{ExecUnit("week"), 0},
	}
	for _, tt := range tests {
		if got := tt.unit.Seconds(); got != tt.want {
			t.Errorf("Seconds(%q) = %d, want %d", tt.unit, got, tt.want)
		}
	}
}

func TestExecUnitIsValid(t *testing.T) {
	for _, u := range AllExecUnits() {
		if !u.IsValid() {
			t.Errorf("IsValid(%q) = false, want true", u)
		}
	}
	if ExecUnit("second").IsValid() {
		t.Error("IsValid(second) = true, want false")
	}
}

func TestInitWindowStart(t *testing.T) {
	tests := []struct {
		unit ExecUnit
		now  string
		want string
	}{
		{UnitMinute, "2024-01-01 00:07:00", "2024-01-01 00:06:00"},
		{UnitMinute, "2024-01-01 00:07:59", "2024-01-01 00:06:00"},
		{UnitHour, "2024-01-01 05:30:00", "2024-01-01 04:00:00"},
		{UnitHour, "2024-01-01 00:00:00", "2023-12-31 23:00:00"},
		// Day floors to local midnight in UTC+8.
		{UnitDay, "2024-01-02 08:15:00", "2024-01-01 00:00:00"},
		{UnitDay, "2024-01-02 23:59:59", "2024-01-01 00:00:00"},
	}
	for _, tt := range tests {
		got := InitWindowStart(tt.unit, mustTime(t, tt.now))
		if FormatTime(got) != tt.want {
			t.Errorf("InitWindowStart(%s, %s) = %s, want %s", tt.unit, tt.now, FormatTime(got), tt.want)
		}
	}
}

func TestTagName(t *testing.T) {
	start := mustTime(t, "2024-01-01 00:06:00")
	tests := []struct {
		unit ExecUnit
		want string
	}{
		{UnitMinute, "t_202401010006"},
		{UnitHour, "t_2024010100"},
		{UnitDay, "t_20240101"},
	}
	for _, tt := range tests {
		if got := TagName("t", start, tt.unit); got != tt.want {
			t.Errorf("TagName(t, %s) = %q, want %q", tt.unit, got, tt.want)
		}
	}
}

func TestParseTimeSentinel(t *testing.T) {
	for _, s := range []string{"", SentinelTime} {
		got, err := ParseTime(s)
		if err != nil {
			t.Fatalf("ParseTime(%q) = %v", s, err)
		}
		if !got.IsZero() {
			t.Errorf("ParseTime(%q) = %v, want zero time", s, got)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	s := "2024-06-15 13:45:00"
	if got := FormatTime(mustTime(t, s)); got != s {
		t.Errorf("round trip = %q, want %q", got, s)
	}
}
