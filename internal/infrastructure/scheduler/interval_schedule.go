package scheduler

import (
	"fmt"
	"time"
)

// minInterval is the floor for interval schedules. The loop ticks once a
// second, so anything shorter would just fire on every tick.
const minInterval = time.Second

// IntervalSchedule runs a job at a fixed interval, measured from the start
// of the previous run.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates an interval schedule, clamping the interval
// to the supported floor.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	if interval < minInterval {
		interval = minInterval
	}
	return &IntervalSchedule{
		Interval: interval,
	}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}
