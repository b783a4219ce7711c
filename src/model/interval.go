package model

import "time"

// Interval is the half-open time window [TsStart, TsEnd) handed to task
// scripts, in Unix epoch seconds.
type Interval struct {
	TsStart int64
	TsEnd   int64
}

// Epochs returns the interval as epoch seconds. Closed form is
// (start, end-1).
func (iv Interval) Epochs(closed bool) (int64, int64) {
	if closed {
		return iv.TsStart, iv.TsEnd - 1
	}
	return iv.TsStart, iv.TsEnd
}

// Times returns the interval boundaries as time.Time values in Location.
func (iv Interval) Times(closed bool) (time.Time, time.Time) {
	start, end := iv.Epochs(closed)
	return time.Unix(start, 0).In(Location), time.Unix(end, 0).In(Location)
}

// Strings formats the interval boundaries with the given layout. An empty
// layout uses the storage layout.
func (iv Interval) Strings(layout string, closed bool) (string, string) {
	if layout == "" {
		layout = TimeLayout
	}
	start, end := iv.Times(closed)
	return start.Format(layout), end.Format(layout)
}
