package wake

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrTroxy/cockpit-tools/internal/model"
)

const replyPreviewLimit = 140

// formatResetTime renders a unix-seconds reset instant as local "MM-DD HH:MM".
func formatResetTime(ts *int64) string {
	if ts == nil {
		return "-"
	}
	return time.Unix(*ts, 0).Local().Format("01-02 15:04")
}

func trimForLog(value string, maxChars int) string {
	runes := []rune(value)
	if len(runes) <= maxChars {
		return value
	}
	return string(runes[:maxChars]) + "..."
}

// describeWindowChange renders one capability window's remaining-percentage
// delta, e.g. "5h remaining 40% -> 38%, reset 01-08 14:00".
func describeWindowChange(name string, oldRemaining *int, newRemaining int, resetAt *int64) string {
	remaining := fmt.Sprintf("%d%%", newRemaining)
	if oldRemaining != nil {
		remaining = fmt.Sprintf("%d%% -> %d%%", *oldRemaining, newRemaining)
	}
	return fmt.Sprintf("%s remaining %s, reset %s", name, remaining, formatResetTime(resetAt))
}

// buildReply folds the CLI reply and the quota delta into the single
// human-readable message stored in history.
func buildReply(capabilityID string, oldQuota, newQuota *model.Quota, cliReply string) string {
	var replyPart string
	if trimmed := strings.TrimSpace(cliReply); trimmed != "" {
		replyPart = " Reply: " + trimForLog(trimmed, replyPreviewLimit)
	}

	if newQuota == nil {
		return "Wakeup request completed." + replyPart
	}

	var oldHourly, oldWeekly *int
	if oldQuota != nil {
		oldHourly = &oldQuota.HourlyPercentage
		oldWeekly = &oldQuota.WeeklyPercentage
	}

	hourly := describeWindowChange("5h", oldHourly, newQuota.HourlyPercentage, newQuota.HourlyResetAt)
	weekly := describeWindowChange("Weekly", oldWeekly, newQuota.WeeklyPercentage, newQuota.WeeklyResetAt)

	switch capabilityID {
	case model.CapabilityHourly:
		return fmt.Sprintf("Wakeup completed. %s.%s", hourly, replyPart)
	case model.CapabilityWeekly:
		return fmt.Sprintf("Wakeup completed. %s.%s", weekly, replyPart)
	default:
		return fmt.Sprintf("Wakeup completed. %s | %s.%s", hourly, weekly, replyPart)
	}
}

// lastMessage picks the reply to report: the CLI's last-message file when it
// has content, else the last non-empty stdout line that is not the token
// usage footer.
func lastMessage(fileContent, stdout string) string {
	if trimmed := strings.TrimSpace(fileContent); trimmed != "" {
		return trimmed
	}

	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && line != "tokens used" {
			return line
		}
	}
	return "Wakeup request sent."
}
