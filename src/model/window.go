package model

import (
	"fmt"
	"time"
)

// ExecUnit is the time unit a task's windows are bucketed by.
type ExecUnit string

const (
	UnitMinute ExecUnit = "minute"
	UnitHour   ExecUnit = "hour"
	UnitDay    ExecUnit = "day"
)

// Location is the wall clock all batch times are formatted in.
// Day boundaries land at local midnight in this zone.
var Location = time.FixedZone("UTC+8", 8*3600)

const (
	// TimeLayout is the storage format for every time column.
	TimeLayout = "2006-01-02 15:04:05"

	// SentinelTime marks an unset exec_time / exit_time.
	SentinelTime = "0000-00-00 00:00:00"

	dayOffsetSeconds = 8 * 3600
)

// AllExecUnits returns all valid execution units.
func AllExecUnits() []ExecUnit {
	return []ExecUnit{UnitMinute, UnitHour, UnitDay}
}

// IsValid checks if the unit is one of minute/hour/day.
func (u ExecUnit) IsValid() bool {
	switch u {
	case UnitMinute, UnitHour, UnitDay:
		return true
	}
	return false
}

// Seconds returns the width of one unit in seconds.
func (u ExecUnit) Seconds() int64 {
	switch u {
	case UnitMinute:
		return 60
	case UnitHour:
		return 3600
	case UnitDay:
		return 86400
	default:
		return 0
	}
}

// Duration returns the width of one unit as a time.Duration.
func (u ExecUnit) Duration() time.Duration {
	return time.Duration(u.Seconds()) * time.Second
}

// tagLen maps a unit to the number of timestamp digits kept in a tag.
func (u ExecUnit) tagLen() int {
	switch u {
	case UnitDay:
		return 8
	case UnitHour:
		return 10
	default:
		return 12
	}
}

// FormatTime renders t in the storage layout, in Location.
func FormatTime(t time.Time) string {
	return t.In(Location).Format(TimeLayout)
}

// ParseTime parses a stored time string. The sentinel parses to the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" || s == SentinelTime {
		return time.Time{}, nil
	}
	return time.ParseInLocation(TimeLayout, s, Location)
}

// InitWindowStart returns the start of the most recent fully elapsed window
// for a unit, used to seed generation for a definition with no batches yet.
// Minute and hour windows floor on the epoch; day windows floor to local
// midnight in Location.
func InitWindowStart(u ExecUnit, now time.Time) time.Time {
	ts := now.Unix()
	var start int64
	switch u {
	case UnitMinute:
		start = (ts/60 - 1) * 60
	case UnitHour:
		start = (ts/3600 - 1) * 3600
	default:
		start = ((ts+dayOffsetSeconds)/86400-1)*86400 - dayOffsetSeconds
	}
	return time.Unix(start, 0).In(Location)
}

// TagName derives the canonical tag for a (task, window) pair: the window
// start formatted as YYYYMMDDHHMMSS, truncated to 8/10/12 digits for
// day/hour/minute units, joined to the task name with an underscore.
func TagName(taskName string, start time.Time, u ExecUnit) string {
	stamp := start.In(Location).Format("20060102150405")
	return fmt.Sprintf("%s_%s", taskName, stamp[:u.tagLen()])
}
