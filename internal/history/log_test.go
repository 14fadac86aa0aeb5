package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MrTroxy/cockpit-tools/internal/event"
	"github.com/MrTroxy/cockpit-tools/internal/executor"
	"github.com/MrTroxy/cockpit-tools/internal/model"
	"github.com/MrTroxy/cockpit-tools/internal/storage"
)

func record(id string, ts int64) model.HistoryRecord {
	return model.HistoryRecord{
		ID:            id,
		Timestamp:     ts,
		TriggerType:   model.TriggerTypeAuto,
		TriggerSource: model.TriggerSourceScheduled,
		AccountID:     "acc-1",
		CapabilityID:  model.CapabilityHourly,
		Success:       true,
	}
}

func newTestLog(t *testing.T, store storage.Store) *Log {
	t.Helper()
	return NewLog(context.Background(), store, event.NopPublisher{}, zap.NewNop())
}

// laggyStore delays selected writes to exercise commit ordering.
type laggyStore struct {
	storage.Store
	delay func(key string, value []byte) time.Duration
}

func (s *laggyStore) Set(ctx context.Context, key string, value []byte) error {
	if d := s.delay(key, value); d > 0 {
		time.Sleep(d)
	}
	return s.Store.Set(ctx, key, value)
}

func TestLogAppend(t *testing.T) {
	t.Run("Sorted Newest First", func(t *testing.T) {
		log := newTestLog(t, storage.NewMemoryStore())
		log.Append(record("a", 100), record("b", 300), record("c", 200))

		records := log.Records()
		require.Len(t, records, 3)
		assert.Equal(t, "b", records[0].ID)
		assert.Equal(t, "c", records[1].ID)
		assert.Equal(t, "a", records[2].ID)
	})

	t.Run("Never Exceeds Capacity", func(t *testing.T) {
		log := newTestLog(t, storage.NewMemoryStore())
		for i := 0; i < Capacity+50; i++ {
			log.Append(record(fmt.Sprintf("r-%d", i), int64(i+1)))
		}

		records := log.Records()
		require.Len(t, records, Capacity)
		// The oldest 50 got truncated away.
		assert.Equal(t, int64(Capacity+50), records[0].Timestamp)
		assert.Equal(t, int64(51), records[len(records)-1].Timestamp)
	})

	t.Run("Duplicate IDs Ignored", func(t *testing.T) {
		log := newTestLog(t, storage.NewMemoryStore())
		log.Append(record("a", 100))
		log.Append(record("a", 100), record("b", 200))

		assert.Len(t, log.Records(), 2)
	})

	t.Run("Persists Write-Behind", func(t *testing.T) {
		store := storage.NewMemoryStore()
		log := newTestLog(t, store)
		log.Append(record("a", 100))

		assert.Eventually(t, func() bool {
			data, err := store.Get(context.Background(), storage.KeyHistory)
			if err != nil || data == nil {
				return false
			}
			var persisted []model.HistoryRecord
			return json.Unmarshal(data, &persisted) == nil && len(persisted) == 1
		}, time.Second, 10*time.Millisecond)
	})
}

func TestLogClear(t *testing.T) {
	store := storage.NewMemoryStore()
	log := newTestLog(t, store)
	log.Append(record("a", 100), record("b", 200))
	log.Clear()

	assert.Empty(t, log.Records())
	assert.Eventually(t, func() bool {
		data, err := store.Get(context.Background(), storage.KeyHistory)
		if err != nil || data == nil {
			return false
		}
		var persisted []model.HistoryRecord
		return json.Unmarshal(data, &persisted) == nil && len(persisted) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestLogClearAfterAppendWinsDurably(t *testing.T) {
	// The non-empty snapshot's write is slowed so it settles after the
	// clear's empty snapshot; the stale write must not win.
	store := &laggyStore{
		Store: storage.NewMemoryStore(),
		delay: func(_ string, value []byte) time.Duration {
			var records []model.HistoryRecord
			if json.Unmarshal(value, &records) == nil && len(records) > 0 {
				return 100 * time.Millisecond
			}
			return 0
		},
	}
	log := newTestLog(t, store)
	log.Append(record("a", 100))
	log.Clear()

	require.Eventually(t, func() bool {
		data, err := store.Get(context.Background(), storage.KeyHistory)
		if err != nil || data == nil {
			return false
		}
		var persisted []model.HistoryRecord
		return json.Unmarshal(data, &persisted) == nil && len(persisted) == 0
	}, time.Second, 10*time.Millisecond)

	// Give the slowed write time to land; it must have been dropped.
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, newTestLog(t, store).Records())
}

func TestLogLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("Restores Sorted And Filtered", func(t *testing.T) {
		store := storage.NewMemoryStore()
		stored := []model.HistoryRecord{
			record("a", 100),
			{ID: "no-timestamp"}, // dropped on load
			record("b", 300),
		}
		data, err := json.Marshal(stored)
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, storage.KeyHistory, data))

		log := newTestLog(t, store)
		records := log.Records()
		require.Len(t, records, 2)
		assert.Equal(t, "b", records[0].ID)
	})

	t.Run("Migrates Legacy Key", func(t *testing.T) {
		store := storage.NewMemoryStore()
		data, err := json.Marshal([]model.HistoryRecord{record("legacy", 100)})
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, storage.LegacyKeyHistory, data))

		log := newTestLog(t, store)
		require.Len(t, log.Records(), 1)
		assert.Equal(t, "legacy", log.Records()[0].ID)
	})

	t.Run("Corrupt Data Starts Empty", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Set(ctx, storage.KeyHistory, []byte("not-json")))

		log := newTestLog(t, store)
		assert.Empty(t, log.Records())
	})
}

func TestFoldResults(t *testing.T) {
	started := time.Date(2024, time.January, 8, 9, 0, 0, 0, time.Local)
	results := []executor.ActionResult{
		{
			Target:     model.Target{AccountID: "a1", CapabilityID: model.CapabilityHourly},
			StartedAt:  started,
			DurationMs: 1500,
			Result:     &model.WakeResult{Reply: "wake completed"},
		},
		{
			Target:    model.Target{AccountID: "a2", CapabilityID: model.CapabilityHourly},
			StartedAt: started,
			Err:       errors.New("remote call failed"),
		},
	}

	records := FoldResults("morning-wake", model.TriggerTypeAuto, model.TriggerSourceScheduled, "hello", results)
	require.Len(t, records, 2)

	assert.True(t, records[0].Success)
	assert.Equal(t, "wake completed", records[0].Message)
	assert.Equal(t, int64(1500), records[0].DurationMs)
	assert.Equal(t, "morning-wake", records[0].TaskName)
	assert.Equal(t, started.UnixMilli(), records[0].Timestamp)

	assert.False(t, records[1].Success)
	assert.Equal(t, "remote call failed", records[1].Message)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}
