package schedule

import (
	"fmt"

	"github.com/MrTroxy/cockpit-tools/internal/model"
)

// Documented defaults used when a list-valued field is empty after a load.
const (
	DefaultDailyTime         = "08:00"
	DefaultIntervalHours     = 4
	DefaultIntervalStartTime = "07:00"
	DefaultIntervalEndTime   = "22:00"
	DefaultFallbackTime      = "07:00"
)

// DefaultWeeklyDays are Monday through Friday.
func DefaultWeeklyDays() []int { return []int{1, 2, 3, 4, 5} }

// Normalize repairs a schedule read from storage or submitted by a
// collaborator: every list-valued field ends up non-empty, explicit user
// values are never dropped, and the derived trigger mode is stamped on the
// result. Normalize is idempotent.
func Normalize(s model.Schedule) model.Schedule {
	switch s.RepeatMode {
	case model.RepeatModeDaily, model.RepeatModeWeekly, model.RepeatModeInterval:
	default:
		s.RepeatMode = model.RepeatModeDaily
	}

	s.DailyTimes = cleanTimes(s.DailyTimes)
	if len(s.DailyTimes) == 0 {
		s.DailyTimes = []string{DefaultDailyTime}
	}

	s.WeeklyDays = cleanWeekdays(s.WeeklyDays)
	if len(s.WeeklyDays) == 0 {
		s.WeeklyDays = DefaultWeeklyDays()
	}

	s.WeeklyTimes = cleanTimes(s.WeeklyTimes)
	if len(s.WeeklyTimes) == 0 {
		s.WeeklyTimes = []string{DefaultDailyTime}
	}

	if s.IntervalHours <= 0 {
		s.IntervalHours = DefaultIntervalHours
	}
	if s.IntervalStartTime == "" {
		s.IntervalStartTime = DefaultIntervalStartTime
	}
	if s.IntervalEndTime == "" {
		s.IntervalEndTime = DefaultIntervalEndTime
	}

	s.FallbackTimes = cleanTimes(s.FallbackTimes)
	if len(s.FallbackTimes) == 0 {
		s.FallbackTimes = []string{DefaultFallbackTime}
	}

	s.TriggerMode = s.Mode()
	return s
}

// Validate reports the first malformed field of a schedule. It runs before
// any side effect so a bad draft is never partially applied.
func Validate(s model.Schedule) error {
	for _, group := range [][]string{s.DailyTimes, s.WeeklyTimes, s.FallbackTimes} {
		for _, v := range group {
			if _, _, err := ParseClockTime(v); err != nil {
				return err
			}
		}
	}
	for _, field := range []string{s.IntervalStartTime, s.IntervalEndTime} {
		if field == "" {
			continue
		}
		if _, _, err := ParseClockTime(field); err != nil {
			return err
		}
	}
	for _, d := range s.WeeklyDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: %d", ErrInvalidWeekday, d)
		}
	}
	if s.TimeWindowEnabled {
		for _, field := range []string{s.TimeWindowStart, s.TimeWindowEnd} {
			if _, _, err := ParseClockTime(field); err != nil {
				return err
			}
		}
	}
	if s.CronExpression != "" {
		if err := ValidateCron(s.CronExpression); err != nil {
			return err
		}
	}
	return nil
}

// RepairSelections drops references to accounts or capabilities that no
// longer exist and, when a task's selection empties entirely, substitutes
// the first available element so the task always addresses at least one
// target. Valid selections are never shrunk below what remains valid.
func RepairSelections(tasks []model.Task, accountIDs, capabilityIDs []string) []model.Task {
	out := make([]model.Task, len(tasks))
	for i, task := range tasks {
		task.Schedule.AccountIDs = repairSet(task.Schedule.AccountIDs, accountIDs)
		task.Schedule.CapabilityIDs = repairSet(task.Schedule.CapabilityIDs, capabilityIDs)
		out[i] = task
	}
	return out
}

func repairSet(selected, available []string) []string {
	allowed := make(map[string]struct{}, len(available))
	for _, id := range available {
		allowed[id] = struct{}{}
	}

	kept := make([]string, 0, len(selected))
	for _, id := range selected {
		if _, ok := allowed[id]; ok {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 && len(available) > 0 {
		kept = []string{available[0]}
	}
	return kept
}
