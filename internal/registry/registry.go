package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrTroxy/cockpit-tools/internal/event"
	"github.com/MrTroxy/cockpit-tools/internal/model"
	"github.com/MrTroxy/cockpit-tools/internal/schedule"
	"github.com/MrTroxy/cockpit-tools/internal/storage"
)

// Registry exclusively owns the task set. Mutations are synchronous over
// the in-memory set; the durable store is synced asynchronously afterwards
// and sync failures never roll back or surface to callers.
type Registry struct {
	logger    *zap.Logger
	store     storage.Store
	publisher event.Publisher
	clock     schedule.Clock

	mu    sync.RWMutex
	tasks map[string]model.Task

	// Write-behind commits are serialized and stamped so a slow, stale
	// snapshot can never overwrite a newer one in the store.
	persistMu    sync.Mutex
	syncSeq      uint64
	persistedSeq uint64
}

// NewRegistry restores the task set from the durable store, normalizing
// every loaded schedule. Store failures leave the registry empty.
func NewRegistry(ctx context.Context, store storage.Store, publisher event.Publisher, clock schedule.Clock, logger *zap.Logger) *Registry {
	r := &Registry{
		logger:    logger.Named("registry"),
		store:     store,
		publisher: publisher,
		clock:     clock,
		tasks:     make(map[string]model.Task),
	}
	r.load(ctx)
	return r
}

func (r *Registry) load(ctx context.Context) {
	data, err := storage.GetWithMigration(ctx, r.store, storage.KeyTasks, storage.LegacyKeyTasks)
	if err != nil {
		r.logger.Warn("Failed to load wake tasks", zap.Error(err))
		return
	}
	if data == nil {
		return
	}

	var loaded []model.Task
	if err := json.Unmarshal(data, &loaded); err != nil {
		r.logger.Warn("Failed to parse wake tasks", zap.Error(err))
		return
	}

	for _, task := range loaded {
		if task.ID == "" {
			continue
		}
		task.Schedule = schedule.Normalize(task.Schedule)
		r.tasks[task.ID] = task
	}
	r.logger.Info("Restored wake tasks", zap.Int("count", len(r.tasks)))
}

// List returns all tasks ordered by creation time.
func (r *Registry) List() []model.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns the task with the given id.
func (r *Registry) Get(id string) (model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, nil
}

// Create validates a draft and adds it to the set under a fresh id.
func (r *Registry) Create(draft model.Task) (model.Task, error) {
	if strings.TrimSpace(draft.Name) == "" {
		return model.Task{}, ErrTaskNameRequired
	}
	if err := schedule.Validate(draft.Schedule); err != nil {
		return model.Task{}, err
	}

	task := model.Task{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(draft.Name),
		Enabled:   draft.Enabled,
		CreatedAt: r.clock.Now(),
		Schedule:  schedule.Normalize(draft.Schedule),
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()

	r.logger.Info("Created wake task",
		zap.String("id", task.ID),
		zap.String("name", task.Name),
		zap.String("trigger_mode", string(task.Schedule.TriggerMode)))

	r.sync()
	r.publish(event.SubjectTaskCreated, task)
	return task, nil
}

// Update replaces a task's draft fields in place. CreatedAt and LastRunAt
// are preserved from the stored task.
func (r *Registry) Update(draft model.Task) (model.Task, error) {
	if strings.TrimSpace(draft.Name) == "" {
		return model.Task{}, ErrTaskNameRequired
	}
	if err := schedule.Validate(draft.Schedule); err != nil {
		return model.Task{}, err
	}

	r.mu.Lock()
	existing, ok := r.tasks[draft.ID]
	if !ok {
		r.mu.Unlock()
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, draft.ID)
	}

	task := model.Task{
		ID:        existing.ID,
		Name:      strings.TrimSpace(draft.Name),
		Enabled:   draft.Enabled,
		CreatedAt: existing.CreatedAt,
		LastRunAt: existing.LastRunAt,
		Schedule:  schedule.Normalize(draft.Schedule),
	}
	r.tasks[task.ID] = task
	r.mu.Unlock()

	r.logger.Info("Updated wake task",
		zap.String("id", task.ID),
		zap.String("name", task.Name))

	r.sync()
	r.publish(event.SubjectTaskUpdated, task)
	return task, nil
}

// Delete removes a task from the set.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	delete(r.tasks, id)
	r.mu.Unlock()

	r.logger.Info("Deleted wake task", zap.String("id", id))

	r.sync()
	r.publish(event.SubjectTaskDeleted, task)
	return nil
}

// SetEnabled flips a task's enabled flag.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	task.Enabled = enabled
	r.tasks[id] = task
	r.mu.Unlock()

	r.sync()
	r.publish(event.SubjectTaskUpdated, task)
	return nil
}

// RecordRun stamps a task's last-run time after a fan-out settles.
func (r *Registry) RecordRun(id string, ts time.Time) error {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	task.LastRunAt = &ts
	r.tasks[id] = task
	r.mu.Unlock()

	r.sync()
	return nil
}

// RepairSelections reconciles every task's target selection against the
// currently available accounts and capabilities. No-op when everything is
// still valid.
func (r *Registry) RepairSelections(accountIDs, capabilityIDs []string) {
	r.mu.Lock()
	tasks := make([]model.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}

	changed := false
	for _, repaired := range schedule.RepairSelections(tasks, accountIDs, capabilityIDs) {
		previous := r.tasks[repaired.ID]
		if !stringSlicesEqual(previous.Schedule.AccountIDs, repaired.Schedule.AccountIDs) ||
			!stringSlicesEqual(previous.Schedule.CapabilityIDs, repaired.Schedule.CapabilityIDs) {
			changed = true
		}
		r.tasks[repaired.ID] = repaired
	}
	r.mu.Unlock()

	if changed {
		r.logger.Info("Repaired task target selections")
		r.sync()
	}
}

// sync schedules an asynchronous best-effort write of the task set. The
// snapshot taken under the lock carries a sequence number; a write only
// commits if no later snapshot has committed before it.
func (r *Registry) sync() {
	r.mu.Lock()
	r.syncSeq++
	seq := r.syncSeq
	tasks := make([]model.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	r.mu.Unlock()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	go func() {
		data, err := json.Marshal(tasks)
		if err != nil {
			r.logger.Warn("Failed to serialize wake tasks", zap.Error(err))
			return
		}

		r.persistMu.Lock()
		defer r.persistMu.Unlock()
		if seq <= r.persistedSeq {
			return
		}
		if err := r.store.Set(context.Background(), storage.KeyTasks, data); err != nil {
			r.logger.Warn("Failed to persist wake tasks", zap.Error(err))
			return
		}
		r.persistedSeq = seq
	}()
}

func (r *Registry) publish(subject string, task model.Task) {
	if err := r.publisher.Publish(subject, task); err != nil {
		r.logger.Warn("Failed to publish task event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
