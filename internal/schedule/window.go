package schedule

import "time"

// InWindow reports whether t's wall-clock time falls inside the [start, end)
// window. A window whose start is after its end wraps past midnight.
func InWindow(t time.Time, start, end string) (bool, error) {
	startHour, startMinute, err := ParseClockTime(start)
	if err != nil {
		return false, err
	}
	endHour, endMinute, err := ParseClockTime(end)
	if err != nil {
		return false, err
	}

	minutes := t.Hour()*60 + t.Minute()
	from := startHour*60 + startMinute
	to := endHour*60 + endMinute

	if from <= to {
		return minutes >= from && minutes < to, nil
	}
	return minutes >= from || minutes < to, nil
}

// NextFromTimes returns the earliest instant strictly after now among the
// given wall-clock times, scanning the next 7 days. Malformed times are
// skipped.
func NextFromTimes(times []string, now time.Time) (time.Time, bool) {
	for offset := 0; offset < dailyHorizonDays; offset++ {
		day := now.AddDate(0, 0, offset)
		for _, value := range cleanTimes(times) {
			hour, minute, err := ParseClockTime(value)
			if err != nil {
				continue
			}
			candidate := timeOn(day, hour, minute)
			if candidate.After(now) {
				return candidate, true
			}
		}
	}
	return time.Time{}, false
}
