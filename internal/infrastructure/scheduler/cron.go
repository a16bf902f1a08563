package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronSchedule is a Schedule driven by a standard 5-field cron expression:
// minute hour day-of-month month day-of-week. It is used for jobs that must
// fire at a fixed wall-clock time, such as the nightly check-in code purge,
// where a plain interval would drift with every restart.
//
// Examples:
//   - "*/5 * * * *"  - every 5 minutes
//   - "0 */1 * * *"  - every hour
//   - "0 3 * * *"    - every day at 03:00
//   - "0 0 * * 0"    - every Sunday at midnight
//
// Day-of-month and day-of-week are combined with AND: both must match.
type CronSchedule struct {
	raw      string
	minutes  []int // 0-59
	hours    []int // 0-23
	days     []int // 1-31
	months   []int // 1-12
	weekdays []int // 0-6 (0 = Sunday)
}

// ParseCronSchedule parses a 5-field cron expression.
// Each field supports "*", "*/step", single values, "lo-hi" ranges and
// comma-separated lists of values and ranges.
func ParseCronSchedule(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	minutes, err := parseCronField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("invalid minute field %q: %w", fields[0], err)
	}

	hours, err := parseCronField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("invalid hour field %q: %w", fields[1], err)
	}

	days, err := parseCronField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("invalid day-of-month field %q: %w", fields[2], err)
	}

	months, err := parseCronField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("invalid month field %q: %w", fields[3], err)
	}

	weekdays, err := parseCronField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("invalid day-of-week field %q: %w", fields[4], err)
	}

	return &CronSchedule{
		raw:      expr,
		minutes:  minutes,
		hours:    hours,
		days:     days,
		months:   months,
		weekdays: weekdays,
	}, nil
}

// maxCronIterations bounds the forward search in Next. A full year of
// minutes is enough for any satisfiable 5-field expression.
const maxCronIterations = 366 * 24 * 60

// Next returns the first matching instant strictly after t, at minute
// resolution. It returns the zero time when the expression can never match
// (for example "0 0 30 2 *").
func (c *CronSchedule) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)

	for i := 0; i < maxCronIterations; i++ {
		if c.matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}

	return time.Time{}
}

// String returns the original expression.
func (c *CronSchedule) String() string {
	return c.raw
}

// matches reports whether the instant satisfies every field.
func (c *CronSchedule) matches(t time.Time) bool {
	return containsInt(c.minutes, t.Minute()) &&
		containsInt(c.hours, t.Hour()) &&
		containsInt(c.days, t.Day()) &&
		containsInt(c.months, int(t.Month())) &&
		containsInt(c.weekdays, int(t.Weekday()))
}

// parseCronField expands one cron field into the list of matching values
// within [min, max].
func parseCronField(field string, min, max int) ([]int, error) {
	if field == "*" {
		values := make([]int, 0, max-min+1)
		for v := min; v <= max; v++ {
			values = append(values, v)
		}
		return values, nil
	}

	if strings.HasPrefix(field, "*/") {
		step, err := strconv.Atoi(field[2:])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step %q", field)
		}
		values := make([]int, 0, (max-min)/step+1)
		for v := min; v <= max; v += step {
			values = append(values, v)
		}
		return values, nil
	}

	var values []int
	for _, part := range strings.Split(field, ",") {
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			lo, loErr := strconv.Atoi(bounds[0])
			hi, hiErr := strconv.Atoi(bounds[1])
			if loErr != nil || hiErr != nil {
				return nil, fmt.Errorf("invalid range %q", part)
			}
			if lo > hi || lo < min || hi > max {
				return nil, fmt.Errorf("range %q out of bounds %d-%d", part, min, max)
			}
			for v := lo; v <= hi; v++ {
				values = append(values, v)
			}
			continue
		}

		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", part)
		}
		if v < min || v > max {
			return nil, fmt.Errorf("value %d out of bounds %d-%d", v, min, max)
		}
		values = append(values, v)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("empty field")
	}

	return values, nil
}

// containsInt reports whether v is among the expanded field values.
func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
