package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrTroxy/cockpit-tools/internal/model"
)

func TestNormalize(t *testing.T) {
	t.Run("Fills Defaults", func(t *testing.T) {
		got := Normalize(model.Schedule{})

		assert.Equal(t, model.RepeatModeDaily, got.RepeatMode)
		assert.Equal(t, []string{DefaultDailyTime}, got.DailyTimes)
		assert.Equal(t, DefaultWeeklyDays(), got.WeeklyDays)
		assert.Equal(t, []string{DefaultDailyTime}, got.WeeklyTimes)
		assert.Equal(t, DefaultIntervalHours, got.IntervalHours)
		assert.Equal(t, DefaultIntervalStartTime, got.IntervalStartTime)
		assert.Equal(t, DefaultIntervalEndTime, got.IntervalEndTime)
		assert.Equal(t, []string{DefaultFallbackTime}, got.FallbackTimes)
		assert.Equal(t, model.TriggerModeScheduled, got.TriggerMode)
	})

	t.Run("Preserves Explicit Values", func(t *testing.T) {
		in := model.Schedule{
			RepeatMode: model.RepeatModeWeekly,
			DailyTimes: []string{"06:15", "22:00"},
			WeeklyDays: []int{0, 6},
		}
		got := Normalize(in)

		assert.Equal(t, model.RepeatModeWeekly, got.RepeatMode)
		assert.Equal(t, []string{"06:15", "22:00"}, got.DailyTimes)
		assert.Equal(t, []int{0, 6}, got.WeeklyDays)
	})

	t.Run("Dedupes And Sorts Times", func(t *testing.T) {
		got := Normalize(model.Schedule{
			DailyTimes: []string{"12:00", "08:00", "12:00", " 08:00"},
		})
		assert.Equal(t, []string{"08:00", "12:00"}, got.DailyTimes)
	})

	t.Run("Canonicalizes Unpadded Times", func(t *testing.T) {
		got := Normalize(model.Schedule{
			DailyTimes:    []string{"9:00", "10:00", "09:00"},
			FallbackTimes: []string{"7:5"},
		})
		assert.Equal(t, []string{"09:00", "10:00"}, got.DailyTimes)
		assert.Equal(t, []string{"07:05"}, got.FallbackTimes)
	})

	t.Run("Idempotent", func(t *testing.T) {
		in := model.Schedule{
			RepeatMode:     model.RepeatModeInterval,
			DailyTimes:     []string{"09:00"},
			WeeklyDays:     []int{2},
			CronExpression: "0 9 * * *",
			AccountIDs:     []string{"acc-1"},
			CapabilityIDs:  []string{model.CapabilityHourly},
		}
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice)
	})

	t.Run("Derives Trigger Mode", func(t *testing.T) {
		assert.Equal(t, model.TriggerModeCrontab,
			Normalize(model.Schedule{CronExpression: "0 9 * * *"}).TriggerMode)
		assert.Equal(t, model.TriggerModeQuotaReset,
			Normalize(model.Schedule{WakeOnReset: true}).TriggerMode)
		assert.Equal(t, model.TriggerModeScheduled,
			Normalize(model.Schedule{}).TriggerMode)
	})
}

func TestValidate(t *testing.T) {
	t.Run("Valid Schedule", func(t *testing.T) {
		assert.NoError(t, Validate(Normalize(model.Schedule{})))
	})

	t.Run("Malformed Time", func(t *testing.T) {
		err := Validate(model.Schedule{DailyTimes: []string{"25:00"}})
		assert.ErrorIs(t, err, ErrInvalidTime)

		err = Validate(model.Schedule{DailyTimes: []string{"nine"}})
		assert.ErrorIs(t, err, ErrInvalidTime)
	})

	t.Run("Malformed Cron", func(t *testing.T) {
		err := Validate(model.Schedule{CronExpression: "0 9 *"})
		assert.ErrorIs(t, err, ErrInvalidCronExpression)
	})

	t.Run("Window Times Checked When Enabled", func(t *testing.T) {
		err := Validate(model.Schedule{
			TimeWindowEnabled: true,
			TimeWindowStart:   "07:00",
			TimeWindowEnd:     "bad",
		})
		assert.ErrorIs(t, err, ErrInvalidTime)
	})
}

func TestRepairSelections(t *testing.T) {
	accounts := []string{"acc-1", "acc-2"}
	capabilities := []string{model.CapabilityHourly, model.CapabilityWeekly}

	t.Run("No-Op When Selections Valid", func(t *testing.T) {
		tasks := []model.Task{{
			ID: "t1",
			Schedule: model.Schedule{
				AccountIDs:    []string{"acc-2"},
				CapabilityIDs: []string{model.CapabilityWeekly},
			},
		}}
		repaired := RepairSelections(tasks, accounts, capabilities)
		require.Len(t, repaired, 1)
		assert.Equal(t, []string{"acc-2"}, repaired[0].Schedule.AccountIDs)
		assert.Equal(t, []string{model.CapabilityWeekly}, repaired[0].Schedule.CapabilityIDs)
	})

	t.Run("Substitutes First Available When Emptied", func(t *testing.T) {
		tasks := []model.Task{{
			ID: "t1",
			Schedule: model.Schedule{
				AccountIDs:    []string{"deleted-account"},
				CapabilityIDs: []string{"deleted-capability"},
			},
		}}
		repaired := RepairSelections(tasks, accounts, capabilities)
		require.Len(t, repaired, 1)
		assert.Equal(t, []string{"acc-1"}, repaired[0].Schedule.AccountIDs)
		assert.Equal(t, []string{model.CapabilityHourly}, repaired[0].Schedule.CapabilityIDs)
	})

	t.Run("Keeps Valid Subset Without Substitution", func(t *testing.T) {
		tasks := []model.Task{{
			ID: "t1",
			Schedule: model.Schedule{
				AccountIDs:    []string{"acc-1", "deleted-account"},
				CapabilityIDs: []string{model.CapabilityHourly},
			},
		}}
		repaired := RepairSelections(tasks, accounts, capabilities)
		assert.Equal(t, []string{"acc-1"}, repaired[0].Schedule.AccountIDs)
	})
}
