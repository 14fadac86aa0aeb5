package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Minimal 5-field crontab evaluator. Only the minute and hour fields are
// evaluated; day-of-month, month and day-of-week are accepted syntactically
// but ignored. The step form ("*/n", "a-b/n") generates values from 0
// regardless of the written start. Both limitations are kept for
// compatibility with expressions already persisted by existing tasks.

const (
	cronFieldCount  = 5
	maxMinute       = 59
	maxHour         = 23
	cronHorizonDays = 7
)

type cronSpec struct {
	minutes []int
	hours   []int
}

// ValidateCron reports whether a crontab expression is acceptable to the
// evaluator.
func ValidateCron(expr string) error {
	_, err := parseCron(expr)
	return err
}

// CronNextRuns computes the next run instants matched by a crontab
// expression within a 7-day scan, strictly after now, ascending, at most
// count long. An unparsable expression yields an empty sequence.
func CronNextRuns(expr string, now time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	spec, err := parseCron(expr)
	if err != nil {
		return nil
	}

	var runs []time.Time
	for offset := 0; offset < cronHorizonDays; offset++ {
		day := now.AddDate(0, 0, offset)
		for _, hour := range spec.hours {
			for _, minute := range spec.minutes {
				candidate := timeOn(day, hour, minute)
				if !candidate.After(now) {
					continue
				}
				runs = append(runs, candidate)
				if len(runs) == count {
					return runs
				}
			}
		}
	}
	return runs
}

func parseCron(expr string) (cronSpec, error) {
	fields := strings.Fields(expr)
	if len(fields) < cronFieldCount {
		return cronSpec{}, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidCronExpression, cronFieldCount, len(fields))
	}

	minutes, err := parseCronField(fields[0], maxMinute)
	if err != nil {
		return cronSpec{}, err
	}
	hours, err := parseCronField(fields[1], maxHour)
	if err != nil {
		return cronSpec{}, err
	}
	return cronSpec{minutes: minutes, hours: hours}, nil
}

func parseCronField(field string, max int) ([]int, error) {
	if field == "*" {
		values := make([]int, 0, max+1)
		for v := 0; v <= max; v++ {
			values = append(values, v)
		}
		return values, nil
	}

	if base, stepStr, ok := strings.Cut(field, "/"); ok {
		if base != "*" {
			from, to, ok := strings.Cut(base, "-")
			if !ok {
				return nil, fmt.Errorf("%w: bad step base %q", ErrInvalidCronExpression, field)
			}
			lo, err := strconv.Atoi(from)
			hi, err2 := strconv.Atoi(to)
			if err != nil || err2 != nil || hi < lo {
				return nil, fmt.Errorf("%w: bad step base %q", ErrInvalidCronExpression, field)
			}
		}
		step, err := strconv.Atoi(stepStr)
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("%w: bad step %q", ErrInvalidCronExpression, field)
		}
		// Steps always count from 0, even for an "a-b/n" base.
		var values []int
		for v := 0; v <= max; v += step {
			values = append(values, v)
		}
		return values, nil
	}

	if strings.Contains(field, ",") {
		var values []int
		for _, part := range strings.Split(field, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("%w: bad list value %q", ErrInvalidCronExpression, field)
			}
			values = append(values, v)
		}
		return clampSort(values, max), nil
	}

	if from, to, ok := strings.Cut(field, "-"); ok {
		lo, err := strconv.Atoi(from)
		if err != nil {
			return nil, fmt.Errorf("%w: bad range %q", ErrInvalidCronExpression, field)
		}
		hi, err := strconv.Atoi(to)
		if err != nil || hi < lo {
			return nil, fmt.Errorf("%w: bad range %q", ErrInvalidCronExpression, field)
		}
		var values []int
		for v := lo; v <= hi; v++ {
			values = append(values, v)
		}
		return clampSort(values, max), nil
	}

	v, err := strconv.Atoi(field)
	if err != nil {
		return nil, fmt.Errorf("%w: bad value %q", ErrInvalidCronExpression, field)
	}
	return clampSort([]int{v}, max), nil
}

// clampSort drops out-of-range values, deduplicates and sorts ascending so
// day enumeration emits candidates in time order.
func clampSort(values []int, max int) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if v < 0 || v > max {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
