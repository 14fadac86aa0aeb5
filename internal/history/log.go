package history

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/MrTroxy/cockpit-tools/internal/event"
	"github.com/MrTroxy/cockpit-tools/internal/model"
	"github.com/MrTroxy/cockpit-tools/internal/storage"
)

// Capacity is the maximum number of records the log retains.
const Capacity = 100

// Log is the bounded, recency-ordered record of wake outcomes. The in-memory
// copy is authoritative for readers; the durable store is a best-effort
// write-behind target.
type Log struct {
	logger    *zap.Logger
	store     storage.Store
	publisher event.Publisher

	mu      sync.Mutex
	records []model.HistoryRecord

	// Write-behind commits are serialized and stamped so a slow, stale
	// snapshot can never overwrite a newer one in the store.
	persistMu    sync.Mutex
	seq          uint64
	persistedSeq uint64
}

// NewLog restores the log from the durable store. Records without a valid
// timestamp are dropped; the rest are sorted newest-first and truncated to
// capacity. Store failures leave the log empty, never fail construction.
func NewLog(ctx context.Context, store storage.Store, publisher event.Publisher, logger *zap.Logger) *Log {
	l := &Log{
		logger:    logger.Named("history"),
		store:     store,
		publisher: publisher,
	}
	l.load(ctx)
	return l
}

func (l *Log) load(ctx context.Context) {
	data, err := storage.GetWithMigration(ctx, l.store, storage.KeyHistory, storage.LegacyKeyHistory)
	if err != nil {
		l.logger.Warn("Failed to load wake history", zap.Error(err))
		return
	}
	if data == nil {
		return
	}

	var loaded []model.HistoryRecord
	if err := json.Unmarshal(data, &loaded); err != nil {
		l.logger.Warn("Failed to parse wake history", zap.Error(err))
		return
	}

	records := loaded[:0]
	for _, r := range loaded {
		if r.Timestamp <= 0 {
			continue
		}
		records = append(records, r)
	}
	l.records = sortTruncate(records)
}

// Records returns a copy of the log, newest first.
func (l *Log) Records() []model.HistoryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.HistoryRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Append merges new records into the log, re-sorts newest-first, truncates
// to capacity and schedules a write-behind sync. Records whose id is
// already present are ignored.
func (l *Log) Append(records ...model.HistoryRecord) {
	if len(records) == 0 {
		return
	}

	l.mu.Lock()
	existing := make(map[string]struct{}, len(l.records))
	for _, r := range l.records {
		existing[r.ID] = struct{}{}
	}

	added := 0
	for _, r := range records {
		if _, ok := existing[r.ID]; ok {
			continue
		}
		existing[r.ID] = struct{}{}
		l.records = append(l.records, r)
		added++
	}
	if added == 0 {
		l.mu.Unlock()
		return
	}
	l.records = sortTruncate(l.records)
	snapshot := make([]model.HistoryRecord, len(l.records))
	copy(snapshot, l.records)
	total := len(l.records)
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	l.logger.Info("History updated",
		zap.Int("added", added),
		zap.Int("total", total))

	go l.persist(snapshot, seq)
	if err := l.publisher.Publish(event.SubjectHistoryUpdated, snapshot); err != nil {
		l.logger.Warn("Failed to publish history event", zap.Error(err))
	}
}

// Clear empties the log. Confirmation is the caller's concern.
func (l *Log) Clear() {
	l.mu.Lock()
	l.records = nil
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	l.logger.Info("History cleared")
	go l.persist([]model.HistoryRecord{}, seq)
	if err := l.publisher.Publish(event.SubjectHistoryCleared, struct{}{}); err != nil {
		l.logger.Warn("Failed to publish history event", zap.Error(err))
	}
}

// persist commits a stamped snapshot unless a later one already committed.
func (l *Log) persist(records []model.HistoryRecord, seq uint64) {
	data, err := json.Marshal(records)
	if err != nil {
		l.logger.Warn("Failed to serialize wake history", zap.Error(err))
		return
	}

	l.persistMu.Lock()
	defer l.persistMu.Unlock()
	if seq <= l.persistedSeq {
		return
	}
	if err := l.store.Set(context.Background(), storage.KeyHistory, data); err != nil {
		l.logger.Warn("Failed to persist wake history", zap.Error(err))
		return
	}
	l.persistedSeq = seq
}

func sortTruncate(records []model.HistoryRecord) []model.HistoryRecord {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
	if len(records) > Capacity {
		records = records[:Capacity]
	}
	return records
}
