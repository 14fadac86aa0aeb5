package model

// TriggerMode identifies which recurrence strategy governs a task.
// Exactly one mode is active per task; normalization derives it from the
// legacy flag pair (cron expression presence, wake-on-reset).
type TriggerMode string

const (
	TriggerModeScheduled  TriggerMode = "scheduled"
	TriggerModeCrontab    TriggerMode = "crontab"
	TriggerModeQuotaReset TriggerMode = "quota_reset"
)

// RepeatMode selects the recurrence shape of a scheduled trigger.
type RepeatMode string

const (
	RepeatModeDaily    RepeatMode = "daily"
	RepeatModeWeekly   RepeatMode = "weekly"
	RepeatModeInterval RepeatMode = "interval"
)

// Schedule is the recurrence rule and target selection for one task revision.
// Times are local wall-clock "HH:MM" strings; callers must run a Schedule
// through schedule.Normalize before evaluating it.
type Schedule struct {
	TriggerMode TriggerMode `json:"trigger_mode,omitempty"`
	RepeatMode  RepeatMode  `json:"repeat_mode"`

	DailyTimes  []string `json:"daily_times"`
	WeeklyDays  []int    `json:"weekly_days"` // 0 = Sunday
	WeeklyTimes []string `json:"weekly_times"`

	IntervalHours     int    `json:"interval_hours"`
	IntervalStartTime string `json:"interval_start_time"`
	IntervalEndTime   string `json:"interval_end_time"`

	CronExpression string `json:"cron_expression,omitempty"`
	WakeOnReset    bool   `json:"wake_on_reset"`

	// Selected accounts x capabilities define the fan-out call matrix.
	AccountIDs    []string `json:"account_ids"`
	CapabilityIDs []string `json:"capability_ids"`

	CustomPrompt    string `json:"custom_prompt,omitempty"`
	MaxOutputTokens int    `json:"max_output_tokens"`

	// Quota-reset tasks only: permitted firing window and deterministic
	// catch-up times when a reset lands outside the window.
	TimeWindowEnabled bool     `json:"time_window_enabled"`
	TimeWindowStart   string   `json:"time_window_start"`
	TimeWindowEnd     string   `json:"time_window_end"`
	FallbackTimes     []string `json:"fallback_times"`
}

// Mode derives the active trigger mode from the legacy flag pair.
// A present cron expression wins over the wake-on-reset flag.
func (s Schedule) Mode() TriggerMode {
	if s.CronExpression != "" {
		return TriggerModeCrontab
	}
	if s.WakeOnReset {
		return TriggerModeQuotaReset
	}
	return TriggerModeScheduled
}
