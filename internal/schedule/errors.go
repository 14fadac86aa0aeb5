package schedule

import "errors"

var (
	// ErrInvalidTime is returned when a wall-clock time string is not valid HH:MM
	ErrInvalidTime = errors.New("invalid wall-clock time")

	// ErrInvalidCronExpression is returned when a crontab expression cannot be parsed
	ErrInvalidCronExpression = errors.New("invalid cron expression")

	// ErrInvalidWeekday is returned when a weekday index is outside 0-6
	ErrInvalidWeekday = errors.New("invalid weekday index")
)
