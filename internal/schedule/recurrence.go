package schedule

import (
	"time"

	"github.com/MrTroxy/cockpit-tools/internal/model"
)

// Search horizons, in days. Daily and interval rules recur every day, so a
// week always contains the next occurrence; weekly rules need two weeks to
// cover every configured weekday after a short week.
const (
	dailyHorizonDays  = 7
	weeklyHorizonDays = 14
)

// NextRuns computes the next run instants for a scheduled-mode rule.
// Results are strictly after now, ascending, and at most count long.
// The schedule must be normalized; malformed time strings are skipped.
func NextRuns(s model.Schedule, now time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}

	switch s.RepeatMode {
	case model.RepeatModeWeekly:
		return weeklyRuns(s, now, count)
	case model.RepeatModeInterval:
		return intervalRuns(s, now, count)
	default:
		return dailyRuns(s, now, count)
	}
}

func dailyRuns(s model.Schedule, now time.Time, count int) []time.Time {
	var runs []time.Time
	for offset := 0; offset < dailyHorizonDays; offset++ {
		day := now.AddDate(0, 0, offset)
		for _, value := range s.DailyTimes {
			hour, minute, err := ParseClockTime(value)
			if err != nil {
				continue
			}
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
	return runs
}

func weeklyRuns(s model.Schedule, now time.Time, count int) []time.Time {
	days := make(map[int]struct{}, len(s.WeeklyDays))
	for _, d := range s.WeeklyDays {
		days[d] = struct{}{}
	}

	var runs []time.Time
	for offset := 0; offset < weeklyHorizonDays; offset++ {
		day := now.AddDate(0, 0, offset)
		if _, ok := days[int(day.Weekday())]; !ok {
			continue
		}
		for _, value := range s.WeeklyTimes {
			hour, minute, err := ParseClockTime(value)
			if err != nil {
				continue
			}
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
	return runs
}

func intervalRuns(s model.Schedule, now time.Time, count int) []time.Time {
	startHour, startMinute, err := ParseClockTime(s.IntervalStartTime)
	if err != nil {
		return nil
	}
	endHour, _, err := ParseClockTime(s.IntervalEndTime)
	if err != nil {
		return nil
	}
	step := s.IntervalHours
	if step <= 0 {
		return nil
	}

	var runs []time.Time
	for offset := 0; offset < dailyHorizonDays; offset++ {
		day := now.AddDate(0, 0, offset)
		// Every candidate reuses the start time's minute.
		for hour := startHour; hour <= endHour; hour += step {
			candidate := timeOn(day, hour, startMinute)
			if !candidate.After(now) {
				continue
			}
			runs = append(runs, candidate)
			if len(runs) == count {
				return runs
			}
		}
	}
	return runs
}

// NextRun answers "when does this task fire next" for display and for the
// trigger timer. Quota-reset tasks have no computed next run; they are
// driven by externally observed reset instants.
func NextRun(s model.Schedule, now time.Time) (time.Time, bool) {
	switch s.Mode() {
	case model.TriggerModeCrontab:
		runs := CronNextRuns(s.CronExpression, now, 1)
		if len(runs) == 0 {
			return time.Time{}, false
		}
		return runs[0], true
	case model.TriggerModeQuotaReset:
		return time.Time{}, false
	default:
		runs := NextRuns(s, now, 1)
		if len(runs) == 0 {
			return time.Time{}, false
		}
		return runs[0], true
	}
}
