package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MrTroxy/cockpit-tools/internal/model"
)

// DefaultUsageURL is the usage endpoint quota snapshots are read from.
const DefaultUsageURL = "https://chatgpt.com/backend-api/wham/usage"

const bodyPreviewLimit = 200

type windowInfo struct {
	UsedPercent        *int   `json:"used_percent"`
	LimitWindowSeconds *int64 `json:"limit_window_seconds"`
	ResetAfterSeconds  *int64 `json:"reset_after_seconds"`
	ResetAt            *int64 `json:"reset_at"`
}

type rateLimitInfo struct {
	Allowed         *bool       `json:"allowed"`
	LimitReached    *bool       `json:"limit_reached"`
	PrimaryWindow   *windowInfo `json:"primary_window"`
	SecondaryWindow *windowInfo `json:"secondary_window"`
}

type usageResponse struct {
	PlanType  *string        `json:"plan_type"`
	RateLimit *rateLimitInfo `json:"rate_limit"`
}

// Client reads remaining-usage snapshots for accounts. The primary window
// maps to the 5-hour capability, the secondary window to the weekly one.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	usageURL   string
}

// NewClient creates a quota client against the given usage endpoint.
// An empty url selects the default endpoint.
func NewClient(usageURL string, logger *zap.Logger) *Client {
	if usageURL == "" {
		usageURL = DefaultUsageURL
	}
	return &Client{
		logger: logger.Named("quota"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		usageURL: usageURL,
	}
}

// Fetch retrieves the current quota snapshot for one account.
func (c *Client) Fetch(ctx context.Context, account model.Account) (*model.Quota, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.usageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+account.AccessToken)
	req.Header.Set("Accept", "application/json")
	if account.RemoteID != "" {
		req.Header.Set("ChatGPT-Account-Id", account.RemoteID)
	}

	c.logger.Info("Fetching quota",
		zap.String("account_id", account.ID),
		zap.String("url", c.usageURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quota request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, c.statusError(resp.StatusCode, body)
	}

	var usage usageResponse
	if err := json.Unmarshal(body, &usage); err != nil {
		return nil, fmt.Errorf("failed to parse quota response: %w", err)
	}
	return quotaFromUsage(&usage), nil
}

func (c *Client) statusError(status int, body []byte) error {
	preview := string(body)
	if len(preview) > bodyPreviewLimit {
		preview = preview[:bodyPreviewLimit]
	}

	c.logger.Error("Quota endpoint returned error status",
		zap.Int("status", status),
		zap.String("body", preview))

	if code := detailCode(body); code != "" {
		return fmt.Errorf("usage API returned %d [error_code:%s] - %s", status, code, preview)
	}
	return fmt.Errorf("usage API returned %d - %s", status, preview)
}

// detailCode digs the service error code out of an error body, checking
// both the nested and the flat shape the endpoint is known to produce.
func detailCode(body []byte) string {
	var payload struct {
		Detail struct {
			Code string `json:"code"`
		} `json:"detail"`
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Detail.Code != "" {
		return payload.Detail.Code
	}
	return payload.Code
}

// quotaFromUsage converts used percentages into remaining percentages.
// A missing window counts as untouched (100% remaining).
func quotaFromUsage(usage *usageResponse) *model.Quota {
	quota := &model.Quota{
		HourlyPercentage: 100,
		WeeklyPercentage: 100,
	}

	var rl *rateLimitInfo
	if usage != nil {
		rl = usage.RateLimit
	}
	if rl == nil {
		return quota
	}

	if w := rl.PrimaryWindow; w != nil {
		used := 0
		if w.UsedPercent != nil {
			used = *w.UsedPercent
		}
		quota.HourlyPercentage = 100 - used
		quota.HourlyResetAt = w.ResetAt
	}
	if w := rl.SecondaryWindow; w != nil {
		used := 0
		if w.UsedPercent != nil {
			used = *w.UsedPercent
		}
		quota.WeeklyPercentage = 100 - used
		quota.WeeklyResetAt = w.ResetAt
	}
	return quota
}

// ResetAtFor returns the reset instant of the capability's window, when
// the snapshot reports one.
func ResetAtFor(q *model.Quota, capabilityID string) (time.Time, bool) {
	if q == nil {
		return time.Time{}, false
	}
	var at *int64
	switch capabilityID {
	case model.CapabilityWeekly:
		at = q.WeeklyResetAt
	default:
		at = q.HourlyResetAt
	}
	if at == nil {
		return time.Time{}, false
	}
	return time.Unix(*at, 0), true
}
