package model

// TriggerType says whether a run was fired by the operator or the timer.
type TriggerType string

const (
	TriggerTypeManual TriggerType = "manual"
	TriggerTypeAuto   TriggerType = "auto"
)

// TriggerSource records which trigger mode (or a manual test run)
// produced a history record.
type TriggerSource string

const (
	TriggerSourceScheduled  TriggerSource = "scheduled"
	TriggerSourceCrontab    TriggerSource = "crontab"
	TriggerSourceQuotaReset TriggerSource = "quota_reset"
	TriggerSourceManual     TriggerSource = "manual"
)

// HistoryRecord is one settled wake outcome for one target.
// Records are immutable once created; the history log only merges,
// sorts and truncates them.
type HistoryRecord struct {
	ID            string        `json:"id"`
	Timestamp     int64         `json:"timestamp"` // unix milliseconds
	TriggerType   TriggerType   `json:"trigger_type"`
	TriggerSource TriggerSource `json:"trigger_source"`
	TaskName      string        `json:"task_name,omitempty"`
	AccountID     string        `json:"account_id"`
	CapabilityID  string        `json:"capability_id"`
	Prompt        string        `json:"prompt,omitempty"`
	Success       bool          `json:"success"`
	Message       string        `json:"message,omitempty"`
	DurationMs    int64         `json:"duration_ms,omitempty"`
}

// Quota is the remaining-usage snapshot for one account, split into the
// five-hour and weekly capability windows.
type Quota struct {
	HourlyPercentage int    `json:"hourly_percentage"`
	HourlyResetAt    *int64 `json:"hourly_reset_at,omitempty"` // unix seconds
	WeeklyPercentage int    `json:"weekly_percentage"`
	WeeklyResetAt    *int64 `json:"weekly_reset_at,omitempty"`
}
