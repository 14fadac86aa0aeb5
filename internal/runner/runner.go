package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/MrTroxy/cockpit-tools/internal/event"
	"github.com/MrTroxy/cockpit-tools/internal/executor"
	"github.com/MrTroxy/cockpit-tools/internal/history"
	"github.com/MrTroxy/cockpit-tools/internal/model"
	"github.com/MrTroxy/cockpit-tools/internal/quota"
	"github.com/MrTroxy/cockpit-tools/internal/registry"
	"github.com/MrTroxy/cockpit-tools/internal/schedule"
	"github.com/MrTroxy/cockpit-tools/internal/wake"
)

// QuotaSource exposes the most recently observed quota per account.
// The wake caller implements it from its post-run refresh cache.
type QuotaSource interface {
	Snapshot(accountID string) (*model.Quota, bool)
}

// Runner drives automatic task execution. A per-minute tick scans every
// enabled task for trigger instants that fell inside the interval since
// the previous tick and fires a fan-out for each hit.
type Runner struct {
	logger    *zap.Logger
	registry  *registry.Registry
	exec      *executor.FanOutExecutor
	hist      *history.Log
	publisher event.Publisher
	clock     schedule.Clock
	quotas    QuotaSource

	cron *cron.Cron

	mu        sync.Mutex
	lastCheck time.Time
	// Quota-reset tasks whose reset landed outside their permitted window,
	// keyed by task ID to the rescheduled fallback instant.
	pendingFallbacks map[string]time.Time
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewRunner creates a runner. quotas may be nil when no quota source is
// configured; quota-reset tasks then only fire via their fallback times.
func NewRunner(reg *registry.Registry, exec *executor.FanOutExecutor, hist *history.Log, publisher event.Publisher, quotas QuotaSource, clock schedule.Clock, logger *zap.Logger) *Runner {
	cl := &cronLogger{logger: logger.Named("cron")}
	return &Runner{
		logger:           logger.Named("runner"),
		registry:         reg,
		exec:             exec,
		hist:             hist,
		publisher:        publisher,
		clock:            clock,
		quotas:           quotas,
		cron:             cron.New(cron.WithChain(cron.Recover(cl))),
		pendingFallbacks: make(map[string]time.Time),
	}
}

// Start begins the per-minute trigger scan. The baseline for the first
// interval is the start instant, so nothing that was already due before
// Start fires retroactively.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	r.lastCheck = r.clock.Now()
	r.mu.Unlock()

	if _, err := r.cron.AddFunc("* * * * *", func() {
		r.tick(ctx)
	}); err != nil {
		return fmt.Errorf("failed to register trigger tick: %w", err)
	}

	r.cron.Start()
	r.logger.Info("Trigger runner started")
	return nil
}

// Stop halts the tick and waits for an in-flight tick to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("Trigger runner stopped")
}

// tick scans every enabled task for trigger instants inside (last, now].
func (r *Runner) tick(ctx context.Context) {
	now := r.clock.Now()

	r.mu.Lock()
	last := r.lastCheck
	r.lastCheck = now
	r.mu.Unlock()

	if !now.After(last) {
		return
	}

	tasks := r.registry.List()
	r.prunePendingFallbacks(tasks)

	for _, task := range tasks {
		if !task.Enabled {
			continue
		}

		switch task.Schedule.TriggerMode {
		case model.TriggerModeScheduled:
			if r.dueBetween(schedule.NextRuns(task.Schedule, last, 1), now) {
				r.fire(ctx, task, model.TriggerTypeAuto, model.TriggerSourceScheduled)
			}
		case model.TriggerModeCrontab:
			if r.dueBetween(schedule.CronNextRuns(task.Schedule.CronExpression, last, 1), now) {
				r.fire(ctx, task, model.TriggerTypeAuto, model.TriggerSourceCrontab)
			}
		case model.TriggerModeQuotaReset:
			r.checkQuotaReset(ctx, task, last, now)
		}
	}
}

// prunePendingFallbacks drops deferred firings whose task no longer exists.
func (r *Runner) prunePendingFallbacks(tasks []model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pendingFallbacks) == 0 {
		return
	}
	alive := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		alive[task.ID] = struct{}{}
	}
	for id := range r.pendingFallbacks {
		if _, ok := alive[id]; !ok {
			delete(r.pendingFallbacks, id)
		}
	}
}

// dueBetween reports whether the earliest candidate (already strictly
// after the interval start) has arrived by now.
func (r *Runner) dueBetween(candidates []time.Time, now time.Time) bool {
	return len(candidates) > 0 && !candidates[0].After(now)
}

// checkQuotaReset fires a quota-reset task when an observed reset instant
// fell inside (last, now]. A reset outside the permitted time window is
// deferred to the task's next fallback time instead.
func (r *Runner) checkQuotaReset(ctx context.Context, task model.Task, last, now time.Time) {
	r.mu.Lock()
	fallbackAt, pending := r.pendingFallbacks[task.ID]
	if pending && !fallbackAt.After(now) {
		delete(r.pendingFallbacks, task.ID)
		r.mu.Unlock()
		r.logger.Info("Firing deferred quota-reset task",
			zap.String("id", task.ID),
			zap.Time("fallback_at", fallbackAt))
		r.fire(ctx, task, model.TriggerTypeAuto, model.TriggerSourceQuotaReset)
		return
	}
	r.mu.Unlock()

	if r.quotas == nil || pending {
		return
	}

	resetAt, ok := r.resetBetween(task, last, now)
	if !ok {
		return
	}

	if task.Schedule.TimeWindowEnabled {
		in, err := schedule.InWindow(now, task.Schedule.TimeWindowStart, task.Schedule.TimeWindowEnd)
		if err == nil && !in {
			next, ok := schedule.NextFromTimes(task.Schedule.FallbackTimes, now)
			if !ok {
				r.logger.Warn("Quota reset outside window and no fallback times",
					zap.String("id", task.ID))
				return
			}
			r.mu.Lock()
			r.pendingFallbacks[task.ID] = next
			r.mu.Unlock()
			r.logger.Info("Quota reset outside window, deferred to fallback",
				zap.String("id", task.ID),
				zap.Time("reset_at", resetAt),
				zap.Time("fallback_at", next))
			return
		}
	}

	r.logger.Info("Quota reset observed",
		zap.String("id", task.ID),
		zap.Time("reset_at", resetAt))
	r.fire(ctx, task, model.TriggerTypeAuto, model.TriggerSourceQuotaReset)
}

// resetBetween scans the task's selected accounts for a reset instant
// inside (last, now].
func (r *Runner) resetBetween(task model.Task, last, now time.Time) (time.Time, bool) {
	for _, accountID := range task.Schedule.AccountIDs {
		snapshot, ok := r.quotas.Snapshot(accountID)
		if !ok {
			continue
		}
		for _, capabilityID := range task.Schedule.CapabilityIDs {
			resetAt, ok := quota.ResetAtFor(snapshot, capabilityID)
			if ok && resetAt.After(last) && !resetAt.After(now) {
				return resetAt, true
			}
		}
	}
	return time.Time{}, false
}

// RunTask fires a task immediately as a manual trigger. Validation errors
// (unknown task, empty selection) surface synchronously; per-target
// failures are only inside the returned results.
func (r *Runner) RunTask(ctx context.Context, id string) ([]executor.ActionResult, error) {
	task, err := r.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return r.fire(ctx, task, model.TriggerTypeManual, model.TriggerSourceManual)
}

// RunManual fires an ad-hoc wake against an explicit target selection,
// without a backing task. A non-positive token limit falls back to the
// first enabled task's configured limit.
func (r *Runner) RunManual(ctx context.Context, accountIDs, capabilityIDs []string, prompt string, maxOutputTokens int) ([]executor.ActionResult, error) {
	if prompt == "" {
		prompt = wake.DefaultPrompt
	}
	req := model.WakeRequest{
		Prompt:          prompt,
		MaxOutputTokens: executor.ResolveTokenLimit(maxOutputTokens, r.registry.List()),
	}

	results, err := r.exec.Execute(ctx, accountIDs, capabilityIDs, req)
	if err != nil {
		return nil, err
	}

	r.settle("Manual wake", model.TriggerTypeManual, model.TriggerSourceManual, prompt, results)
	return results, nil
}

func (r *Runner) fire(ctx context.Context, task model.Task, triggerType model.TriggerType, source model.TriggerSource) ([]executor.ActionResult, error) {
	prompt := task.Schedule.CustomPrompt
	if prompt == "" {
		prompt = wake.DefaultPrompt
	}
	req := model.WakeRequest{
		Prompt:          prompt,
		MaxOutputTokens: task.Schedule.MaxOutputTokens,
	}

	results, err := r.exec.Execute(ctx, task.Schedule.AccountIDs, task.Schedule.CapabilityIDs, req)
	if err != nil {
		r.logger.Warn("Skipped wake task",
			zap.String("id", task.ID),
			zap.String("name", task.Name),
			zap.Error(err))
		return nil, err
	}

	r.settle(task.Name, triggerType, source, prompt, results)
	if err := r.registry.RecordRun(task.ID, r.clock.Now()); err != nil {
		r.logger.Warn("Failed to record run", zap.String("id", task.ID), zap.Error(err))
	}
	return results, nil
}

// runSummary is the wake.run.completed event payload.
type runSummary struct {
	TaskName    string              `json:"task_name"`
	Source      model.TriggerSource `json:"source"`
	Total       int                 `json:"total"`
	Failed      int                 `json:"failed"`
	CompletedAt int64               `json:"completed_at"` // unix millis
}

// settle folds settled results into history and announces the run.
func (r *Runner) settle(taskName string, triggerType model.TriggerType, source model.TriggerSource, prompt string, results []executor.ActionResult) {
	r.hist.Append(history.FoldResults(taskName, triggerType, source, prompt, results)...)

	failed := 0
	for _, res := range results {
		if !res.Success() {
			failed++
		}
	}
	summary := runSummary{
		TaskName:    taskName,
		Source:      source,
		Total:       len(results),
		Failed:      failed,
		CompletedAt: r.clock.Now().UnixMilli(),
	}
	if err := r.publisher.Publish(event.SubjectRunCompleted, summary); err != nil {
		r.logger.Warn("Failed to publish run summary", zap.Error(err))
	}
}
