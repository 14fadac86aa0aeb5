package history

import (
	"github.com/google/uuid"

	"github.com/MrTroxy/cockpit-tools/internal/executor"
	"github.com/MrTroxy/cockpit-tools/internal/model"
)

// FoldResults normalizes settled fan-out actions into history records, one
// per target. Records carry the action's dispatch timestamp so overlapping
// fan-outs interleave by time.
func FoldResults(taskName string, triggerType model.TriggerType, source model.TriggerSource, prompt string, results []executor.ActionResult) []model.HistoryRecord {
	records := make([]model.HistoryRecord, 0, len(results))
	for _, r := range results {
		record := model.HistoryRecord{
			ID:            uuid.New().String(),
			Timestamp:     r.StartedAt.UnixMilli(),
			TriggerType:   triggerType,
			TriggerSource: source,
			TaskName:      taskName,
			AccountID:     r.Target.AccountID,
			CapabilityID:  r.Target.CapabilityID,
			Prompt:        prompt,
			Success:       r.Success(),
			DurationMs:    r.DurationMs,
		}
		if r.Err != nil {
			record.Message = r.Err.Error()
		} else if r.Result != nil {
			record.Message = r.Result.Reply
		}
		records = append(records, record)
	}
	return records
}
