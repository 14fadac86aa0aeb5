package wake

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrTroxy/cockpit-tools/internal/model"
	"github.com/MrTroxy/cockpit-tools/internal/quota"
)

// DefaultPrompt is sent when a task configures no custom prompt.
const DefaultPrompt = "Reply with exactly: OK"

// DefaultDuplicateWindow suppresses a second wake for the same account
// shortly after one already ran.
const DefaultDuplicateWindow = 8 * time.Second

const skippedDuplicateReply = "Skipped duplicate wakeup request (recently executed for this account)."

// AccountCatalog resolves account ids to credentials. The catalog itself is
// owned by an external collaborator.
type AccountCatalog interface {
	Account(id string) (model.Account, bool)
	List() []model.Account
}

// Config controls how the CLI caller shells out.
type Config struct {
	// BinaryPath overrides CLI binary resolution; when empty the binary
	// is looked up as "codex" on PATH (or CODEX_CLI_PATH).
	BinaryPath      string
	Model           string
	ReasoningConfig string
	DuplicateWindow time.Duration
}

// CLICaller performs wake calls by shelling out to the codex CLI with the
// target account's credentials in an isolated temporary home, then
// refreshing the account's quota snapshot to report the window delta.
type CLICaller struct {
	logger  *zap.Logger
	config  Config
	quota   *quota.Client
	catalog AccountCatalog

	mu        sync.Mutex
	lastRunAt map[string]time.Time
	snapshots map[string]*model.Quota
}

// NewCLICaller creates a caller. The quota client may be nil, in which case
// replies omit window deltas.
func NewCLICaller(config Config, catalog AccountCatalog, quotaClient *quota.Client, logger *zap.Logger) *CLICaller {
	if config.Model == "" {
		config.Model = "gpt-5.3-codex"
	}
	if config.ReasoningConfig == "" {
		config.ReasoningConfig = `model_reasoning_effort="low"`
	}
	if config.DuplicateWindow <= 0 {
		config.DuplicateWindow = DefaultDuplicateWindow
	}
	return &CLICaller{
		logger:    logger.Named("wake"),
		config:    config,
		quota:     quotaClient,
		catalog:   catalog,
		lastRunAt: make(map[string]time.Time),
		snapshots: make(map[string]*model.Quota),
	}
}

// Snapshot returns the most recent quota snapshot observed for an account.
func (c *CLICaller) Snapshot(accountID string) (*model.Quota, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.snapshots[accountID]
	return q, ok
}

// Invoke implements executor.RemoteCaller.
func (c *CLICaller) Invoke(ctx context.Context, target model.Target, req model.WakeRequest) (*model.WakeResult, error) {
	account, ok := c.catalog.Account(target.AccountID)
	if !ok {
		return nil, fmt.Errorf("account not found: %s", target.AccountID)
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}

	started := time.Now()
	c.logger.Info("Starting wakeup",
		zap.String("email", account.Email),
		zap.String("capability_id", target.CapabilityID))

	var cliReply string
	if c.tryReserve(account.ID) {
		reply, err := c.runCLI(ctx, account, prompt)
		if err != nil {
			c.releaseReservation(account.ID)
			return nil, err
		}
		cliReply = reply
	} else {
		c.logger.Info("Skipping duplicate wakeup call",
			zap.String("email", account.Email),
			zap.String("capability_id", target.CapabilityID))
		cliReply = skippedDuplicateReply
	}

	oldQuota, newQuota := c.refreshQuota(ctx, account)
	durationMs := time.Since(started).Milliseconds()

	c.logger.Info("Wakeup completed",
		zap.String("email", account.Email),
		zap.String("capability_id", target.CapabilityID),
		zap.Int64("duration_ms", durationMs))

	return &model.WakeResult{
		Reply:      buildReply(target.CapabilityID, oldQuota, newQuota, cliReply),
		DurationMs: durationMs,
	}, nil
}

// tryReserve claims the duplicate-suppression slot for an account. The
// claim sticks for the configured window unless released after a failure.
func (c *CLICaller) tryReserve(accountID string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.lastRunAt[accountID]; ok && now.Sub(last) < c.config.DuplicateWindow {
		return false
	}
	c.lastRunAt[accountID] = now
	return true
}

func (c *CLICaller) releaseReservation(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastRunAt, accountID)
}

// refreshQuota re-reads the account's quota after the wake and returns the
// (previous, current) pair for the reply. A fetch failure never fails the
// wake; it just leaves the delta out.
func (c *CLICaller) refreshQuota(ctx context.Context, account model.Account) (*model.Quota, *model.Quota) {
	if c.quota == nil {
		return nil, nil
	}

	c.mu.Lock()
	oldQuota := c.snapshots[account.ID]
	c.mu.Unlock()

	newQuota, err := c.quota.Fetch(ctx, account)
	if err != nil {
		c.logger.Warn("Quota refresh failed after wakeup",
			zap.String("email", account.Email),
			zap.Error(err))
		return oldQuota, nil
	}

	c.mu.Lock()
	c.snapshots[account.ID] = newQuota
	c.mu.Unlock()
	return oldQuota, newQuota
}

func (c *CLICaller) runCLI(ctx context.Context, account model.Account, prompt string) (string, error) {
	binary, err := c.resolveBinary()
	if err != nil {
		return "", err
	}

	tempHome, err := os.MkdirTemp("", "cockpit-tools-wakeup-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp wakeup dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempHome); err != nil {
			c.logger.Warn("Failed to cleanup temp CODEX_HOME",
				zap.String("dir", tempHome),
				zap.Error(err))
		}
	}()

	if err := writeAuthFile(tempHome, account); err != nil {
		return "", err
	}

	outputFile := filepath.Join(tempHome, "last_message.txt")
	c.logger.Info("Using CLI binary", zap.String("binary", binary))

	cmd := exec.CommandContext(ctx, binary,
		"exec",
		"-m", c.config.Model,
		"-c", c.config.ReasoningConfig,
		"--skip-git-repo-check",
		"--color", "never",
		"--output-last-message", outputFile,
		prompt,
	)
	cmd.Env = append(os.Environ(), "CODEX_HOME="+tempHome)

	output, err := cmd.Output()
	if err != nil {
		details := strings.TrimSpace(string(output))
		if exitErr, ok := err.(*exec.ExitError); ok {
			if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
				details = stderr
			}
			return "", fmt.Errorf("CLI wakeup failed (exit=%d): %s", exitErr.ExitCode(), trimForLog(details, 500))
		}
		return "", fmt.Errorf("failed to launch CLI wakeup (binary=%s): %w", binary, err)
	}

	fileContent, _ := os.ReadFile(outputFile)
	return lastMessage(string(fileContent), string(output)), nil
}

func (c *CLICaller) resolveBinary() (string, error) {
	if c.config.BinaryPath != "" {
		return c.config.BinaryPath, nil
	}
	if custom := strings.TrimSpace(os.Getenv("CODEX_CLI_PATH")); custom != "" {
		return custom, nil
	}

	binary, err := exec.LookPath("codex")
	if err != nil {
		return "", fmt.Errorf("CLI executable not found: %w", err)
	}
	return binary, nil
}

// writeAuthFile drops the account's credentials into the isolated home so
// the CLI runs as that account.
func writeAuthFile(dir string, account model.Account) error {
	auth := map[string]interface{}{
		"tokens": map[string]string{
			"access_token": account.AccessToken,
			"account_id":   account.RemoteID,
		},
	}
	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize auth file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "auth.json"), data, 0600); err != nil {
		return fmt.Errorf("failed to write auth file: %w", err)
	}
	return nil
}

// StaticCatalog is an AccountCatalog over a fixed account list, handy for
// configuration-driven deployments and tests.
type StaticCatalog struct {
	accounts map[string]model.Account
	order    []string
}

// NewStaticCatalog builds a catalog preserving the given order.
func NewStaticCatalog(accounts []model.Account) *StaticCatalog {
	c := &StaticCatalog{accounts: make(map[string]model.Account, len(accounts))}
	for _, a := range accounts {
		if _, ok := c.accounts[a.ID]; ok {
			continue
		}
		c.accounts[a.ID] = a
		c.order = append(c.order, a.ID)
	}
	return c
}

// Account implements AccountCatalog
func (c *StaticCatalog) Account(id string) (model.Account, bool) {
	a, ok := c.accounts[id]
	return a, ok
}

// List implements AccountCatalog
func (c *StaticCatalog) List() []model.Account {
	out := make([]model.Account, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.accounts[id])
	}
	return out
}
