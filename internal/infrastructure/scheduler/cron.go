package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronSchedule fires at wall-clock times described by a standard
// five-field cron expression: minute, hour, day of month, month and
// day of week (0 = Sunday). Field syntax covers "*", "n", "n-m",
// "a,b,c" and steps like "*/30" or "10-50/20".
//
//	"*/30 * * * *"  every thirty minutes
//	"30 3 * * *"    daily at 03:30
//	"0 21 * * 0"    Sundays at 21:00
//
// The archive cleanup job runs on one of these; the expression comes
// straight from the daemon configuration.
type CronSchedule struct {
	raw      string
	minutes  []int
	hours    []int
	days     []int
	months   []int
	weekdays []int
}

// ParseCron parses expr into a CronSchedule.
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	cs := &CronSchedule{raw: expr}

	specs := []struct {
		name string
		min  int
		max  int
		dst  *[]int
	}{
		{"minute", 0, 59, &cs.minutes},
		{"hour", 0, 23, &cs.hours},
		{"day of month", 1, 31, &cs.days},
		{"month", 1, 12, &cs.months},
		{"day of week", 0, 6, &cs.weekdays},
	}
	for i, spec := range specs {
		values, err := parseCronField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("cron expression %q: %s field: %w", expr, spec.name, err)
		}
		*spec.dst = values
	}

	return cs, nil
}

// MustParseCron parses expr or panics. For fixed expressions only.
func MustParseCron(expr string) *CronSchedule {
	cs, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return cs
}

// parseCronField expands one field into the sorted set of matching
// values within [min, max].
func parseCronField(field string, min, max int) ([]int, error) {
	if field == "" {
		return nil, fmt.Errorf("empty field")
	}

	// Lists recurse so each element gets the full syntax.
	if strings.Contains(field, ",") {
		var values []int
		for _, part := range strings.Split(field, ",") {
			expanded, err := parseCronField(strings.TrimSpace(part), min, max)
			if err != nil {
				return nil, err
			}
			values = append(values, expanded...)
		}
		sort.Ints(values)
		return dedupeInts(values), nil
	}

	step := 1
	rangePart := field
	if idx := strings.Index(field, "/"); idx >= 0 {
		parsed, err := strconv.Atoi(field[idx+1:])
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid step %q", field[idx+1:])
		}
		step = parsed
		rangePart = field[:idx]
	}

	start, end := min, max
	switch {
	case rangePart == "*":
	case strings.Contains(rangePart, "-"):
		parts := strings.SplitN(rangePart, "-", 2)
		var err error
		if start, err = strconv.Atoi(parts[0]); err != nil {
			return nil, fmt.Errorf("invalid range start %q", parts[0])
		}
		if end, err = strconv.Atoi(parts[1]); err != nil {
			return nil, fmt.Errorf("invalid range end %q", parts[1])
		}
	default:
		v, err := strconv.Atoi(rangePart)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", rangePart)
		}
		start = v
		end = v
		if step != 1 {
			// "n/s" counts from n to the top of the range.
			end = max
		}
	}

	if start < min || end > max || start > end {
		return nil, fmt.Errorf("range %d-%d outside [%d-%d]", start, end, min, max)
	}

	values := make([]int, 0, (end-start)/step+1)
	for v := start; v <= end; v += step {
		values = append(values, v)
	}
	return values, nil
}

// dedupeInts removes adjacent duplicates from a sorted slice.
func dedupeInts(sorted []int) []int {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// Next returns the first matching wall-clock minute after t.
func (cs *CronSchedule) Next(t time.Time) time.Time {
	// Cron resolution is one minute.
	next := t.Truncate(time.Minute).Add(time.Minute)

	// Any five-field expression matches within a year.
	limit := next.AddDate(1, 0, 1)
	for ; next.Before(limit); next = next.Add(time.Minute) {
		if cs.matches(next) {
			return next
		}
	}
	return time.Time{}
}

func (cs *CronSchedule) matches(t time.Time) bool {
	return containsInt(cs.minutes, t.Minute()) &&
		containsInt(cs.hours, t.Hour()) &&
		containsInt(cs.days, t.Day()) &&
		containsInt(cs.months, int(t.Month())) &&
		containsInt(cs.weekdays, int(t.Weekday()))
}

func containsInt(values []int, v int) bool {
	for _, item := range values {
		if item == v {
			return true
		}
	}
	return false
}

// String returns the original expression.
func (cs *CronSchedule) String() string {
	return cs.raw
}
