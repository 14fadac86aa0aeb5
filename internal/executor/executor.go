package executor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrTroxy/cockpit-tools/internal/model"
)

// RemoteCaller is the capability that performs one wake call against one
// (account, capability) target. Implementations may fail with any error;
// the executor captures it without retrying.
type RemoteCaller interface {
	Invoke(ctx context.Context, target model.Target, req model.WakeRequest) (*model.WakeResult, error)
}

// ActionResult is the settled outcome of one fan-out action.
type ActionResult struct {
	Target     model.Target
	StartedAt  time.Time
	DurationMs int64
	Result     *model.WakeResult
	Err        error
}

// Success reports whether the action settled without error.
func (r ActionResult) Success() bool { return r.Err == nil }

// FanOutExecutor expands a target selection into independent concurrent
// wake calls. All actions settle; one failure never cancels siblings.
type FanOutExecutor struct {
	logger *zap.Logger
	caller RemoteCaller
}

// NewFanOutExecutor creates a new fan-out executor.
func NewFanOutExecutor(caller RemoteCaller, logger *zap.Logger) *FanOutExecutor {
	return &FanOutExecutor{
		logger: logger.Named("fanout"),
		caller: caller,
	}
}

// Execute issues one call per (account, capability) pair concurrently and
// returns once every action has settled. Empty selections fail before any
// call is dispatched. Per-action duration is measured dispatch to settle,
// overridden by a callee-reported duration when present.
func (e *FanOutExecutor) Execute(ctx context.Context, accountIDs, capabilityIDs []string, req model.WakeRequest) ([]ActionResult, error) {
	if len(accountIDs) == 0 {
		return nil, ErrNoAccountsSelected
	}
	if len(capabilityIDs) == 0 {
		return nil, ErrNoCapabilitiesSelected
	}

	targets := make([]model.Target, 0, len(accountIDs)*len(capabilityIDs))
	for _, accountID := range accountIDs {
		for _, capabilityID := range capabilityIDs {
			targets = append(targets, model.Target{
				AccountID:    accountID,
				CapabilityID: capabilityID,
			})
		}
	}

	e.logger.Info("Dispatching wake fan-out",
		zap.Int("targets", len(targets)),
		zap.Int("accounts", len(accountIDs)),
		zap.Int("capabilities", len(capabilityIDs)))

	results := make([]ActionResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target model.Target) {
			defer wg.Done()
			results[i] = e.runAction(ctx, target, req)
		}(i, target)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success() {
			failed++
		}
	}
	e.logger.Info("Wake fan-out settled",
		zap.Int("total", len(results)),
		zap.Int("failed", failed))

	return results, nil
}

func (e *FanOutExecutor) runAction(ctx context.Context, target model.Target, req model.WakeRequest) ActionResult {
	started := time.Now()
	result, err := e.caller.Invoke(ctx, target, req)
	durationMs := time.Since(started).Milliseconds()
	if result != nil && result.DurationMs > 0 {
		durationMs = result.DurationMs
	}

	if err != nil {
		e.logger.Warn("Wake action failed",
			zap.String("account_id", target.AccountID),
			zap.String("capability_id", target.CapabilityID),
			zap.Error(err))
	}

	return ActionResult{
		Target:     target,
		StartedAt:  started,
		DurationMs: durationMs,
		Result:     result,
		Err:        err,
	}
}

// ResolveTokenLimit picks the output-token limit for a call: the explicit
// per-call value when positive, else the first enabled task's configured
// limit, else 0 ("let the callee decide").
func ResolveTokenLimit(explicit int, tasks []model.Task) int {
	if explicit > 0 {
		return explicit
	}
	for _, task := range tasks {
		if task.Enabled && task.Schedule.MaxOutputTokens > 0 {
			return task.Schedule.MaxOutputTokens
		}
	}
	return 0
}
