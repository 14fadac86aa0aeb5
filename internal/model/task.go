package model

import (
	"time"
)

// Task represents one recurring wake trigger definition.
type Task struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Enabled   bool       `json:"enabled"`
	CreatedAt time.Time  `json:"created_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	Schedule  Schedule   `json:"schedule"`
}

// Target is one (account, capability) pair eligible to receive a wake call.
type Target struct {
	AccountID    string `json:"account_id"`
	CapabilityID string `json:"capability_id"`
}

// WakeRequest carries the per-run call payload for one fan-out.
type WakeRequest struct {
	Prompt          string `json:"prompt,omitempty"`
	MaxOutputTokens int    `json:"max_output_tokens,omitempty"`
}

// WakeUsage reports token usage when the callee provides it.
type WakeUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// WakeResult is the settled outcome of a single wake call.
type WakeResult struct {
	Reply      string     `json:"reply"`
	Usage      *WakeUsage `json:"usage,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// Account identifies one remote account the caller can wake.
// The account catalog itself is owned by an external collaborator.
type Account struct {
	ID          string `json:"id" mapstructure:"id"`
	Email       string `json:"email" mapstructure:"email"`
	AccessToken string `json:"access_token,omitempty" mapstructure:"access_token"`
	RemoteID    string `json:"remote_id,omitempty" mapstructure:"remote_id"`
}

// Capability is one capability window a wake call can address.
type Capability struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Recommended bool   `json:"recommended,omitempty"`
}

const (
	CapabilityHourly = "codex-hourly"
	CapabilityWeekly = "codex-weekly"
)

// DefaultCapabilities returns the built-in capability window catalog.
func DefaultCapabilities() []Capability {
	return []Capability{
		{ID: CapabilityHourly, DisplayName: "5h Window", Recommended: true},
		{ID: CapabilityWeekly, DisplayName: "Weekly Window", Recommended: true},
	}
}
