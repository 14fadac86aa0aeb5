package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrTroxy/cockpit-tools/internal/model"
)

func localDate(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.Local)
}

func TestNextRunsDaily(t *testing.T) {
	sched := Normalize(model.Schedule{
		RepeatMode: model.RepeatModeDaily,
		DailyTimes: []string{"12:30", "08:00"},
	})

	t.Run("First Run Is Earliest Future Time", func(t *testing.T) {
		now := localDate(2024, time.January, 8, 9, 0)
		runs := NextRuns(sched, now, 3)
		require.Len(t, runs, 3)

		assert.Equal(t, localDate(2024, time.January, 8, 12, 30), runs[0])
		assert.Equal(t, localDate(2024, time.January, 9, 8, 0), runs[1])
		assert.Equal(t, localDate(2024, time.January, 9, 12, 30), runs[2])
	})

	t.Run("All Runs Strictly After Now And Ascending", func(t *testing.T) {
		now := localDate(2024, time.January, 8, 12, 30)
		runs := NextRuns(sched, now, 10)
		require.NotEmpty(t, runs)

		for i, run := range runs {
			assert.True(t, run.After(now), "run %d not after now", i)
			if i > 0 {
				assert.True(t, run.After(runs[i-1]), "run %d not ascending", i)
			}
		}
	})

	t.Run("Unpadded Times Still Order By Clock", func(t *testing.T) {
		s := Normalize(model.Schedule{
			RepeatMode: model.RepeatModeDaily,
			DailyTimes: []string{"9:00", "10:00"},
		})
		now := localDate(2024, time.January, 8, 8, 0)
		runs := NextRuns(s, now, 2)
		require.Len(t, runs, 2)
		assert.Equal(t, localDate(2024, time.January, 8, 9, 0), runs[0])
		assert.Equal(t, localDate(2024, time.January, 8, 10, 0), runs[1])
	})

	t.Run("Exact Boundary Excluded", func(t *testing.T) {
		now := localDate(2024, time.January, 8, 8, 0)
		runs := NextRuns(sched, now, 1)
		require.Len(t, runs, 1)
		assert.Equal(t, localDate(2024, time.January, 8, 12, 30), runs[0])
	})

	t.Run("Truncates To Count", func(t *testing.T) {
		now := localDate(2024, time.January, 8, 0, 0)
		runs := NextRuns(sched, now, 5)
		assert.Len(t, runs, 5)
	})

	t.Run("Zero Count", func(t *testing.T) {
		assert.Empty(t, NextRuns(sched, localDate(2024, time.January, 8, 0, 0), 0))
	})
}

func TestNextRunsWeekly(t *testing.T) {
	// Monday and Wednesday at 09:00.
	sched := Normalize(model.Schedule{
		RepeatMode:  model.RepeatModeWeekly,
		WeeklyDays:  []int{1, 3},
		WeeklyTimes: []string{"09:00"},
	})

	t.Run("Skips Days Outside Selection", func(t *testing.T) {
		// 2024-01-08 is a Monday.
		now := localDate(2024, time.January, 8, 10, 0)
		runs := NextRuns(sched, now, 3)
		require.Len(t, runs, 3)

		assert.Equal(t, localDate(2024, time.January, 10, 9, 0), runs[0]) // Wednesday
		assert.Equal(t, localDate(2024, time.January, 15, 9, 0), runs[1]) // next Monday
		assert.Equal(t, localDate(2024, time.January, 17, 9, 0), runs[2]) // next Wednesday
	})

	t.Run("Same Day Future Time Included", func(t *testing.T) {
		now := localDate(2024, time.January, 8, 8, 0)
		runs := NextRuns(sched, now, 1)
		require.Len(t, runs, 1)
		assert.Equal(t, localDate(2024, time.January, 8, 9, 0), runs[0])
	})
}

func TestNextRunsInterval(t *testing.T) {
	sched := Normalize(model.Schedule{
		RepeatMode:        model.RepeatModeInterval,
		IntervalHours:     4,
		IntervalStartTime: "07:00",
		IntervalEndTime:   "22:00",
	})

	t.Run("Steps From Start Hour Within Window", func(t *testing.T) {
		now := localDate(2024, time.January, 8, 6, 0)
		runs := NextRuns(sched, now, 5)
		require.Len(t, runs, 5)

		assert.Equal(t, localDate(2024, time.January, 8, 7, 0), runs[0])
		assert.Equal(t, localDate(2024, time.January, 8, 11, 0), runs[1])
		assert.Equal(t, localDate(2024, time.January, 8, 15, 0), runs[2])
		assert.Equal(t, localDate(2024, time.January, 8, 19, 0), runs[3])
		assert.Equal(t, localDate(2024, time.January, 9, 7, 0), runs[4])
	})

	t.Run("Never Exceeds End Hour", func(t *testing.T) {
		now := localDate(2024, time.January, 8, 0, 0)
		runs := NextRuns(sched, now, 20)
		for _, run := range runs {
			assert.LessOrEqual(t, run.Hour(), 22)
		}
	})

	t.Run("Reuses Start Minute", func(t *testing.T) {
		s := Normalize(model.Schedule{
			RepeatMode:        model.RepeatModeInterval,
			IntervalHours:     6,
			IntervalStartTime: "07:45",
			IntervalEndTime:   "20:00",
		})
		now := localDate(2024, time.January, 8, 0, 0)
		runs := NextRuns(s, now, 3)
		require.Len(t, runs, 3)
		assert.Equal(t, localDate(2024, time.January, 8, 7, 45), runs[0])
		assert.Equal(t, localDate(2024, time.January, 8, 13, 45), runs[1])
		assert.Equal(t, localDate(2024, time.January, 8, 19, 45), runs[2])
	})
}

func TestNextRun(t *testing.T) {
	now := localDate(2024, time.January, 8, 10, 0)

	t.Run("Scheduled", func(t *testing.T) {
		sched := Normalize(model.Schedule{DailyTimes: []string{"11:00"}})
		run, ok := NextRun(sched, now)
		require.True(t, ok)
		assert.Equal(t, localDate(2024, time.January, 8, 11, 0), run)
	})

	t.Run("Crontab", func(t *testing.T) {
		sched := Normalize(model.Schedule{CronExpression: "30 11 * * *"})
		run, ok := NextRun(sched, now)
		require.True(t, ok)
		assert.Equal(t, localDate(2024, time.January, 8, 11, 30), run)
	})

	t.Run("Quota Reset Has No Computed Run", func(t *testing.T) {
		sched := Normalize(model.Schedule{WakeOnReset: true})
		_, ok := NextRun(sched, now)
		assert.False(t, ok)
	})
}
