package storage

import (
	"context"
	"errors"
)

// Storage keys for the entities the core persists. Each consumer gets its
// own key pair instead of reaching into an ambient string-keyed cache.
const (
	KeyTasks   = "wake_tasks"
	KeyHistory = "wake_history"

	// Keys written by earlier releases, migrated lazily on first read.
	LegacyKeyTasks   = "codex_wakeup_tasks"
	LegacyKeyHistory = "codex_wakeup_history"
)

// ErrClosed is returned when a store is used after Close
var ErrClosed = errors.New("store is closed")

// Store is the durable key-value capability the core depends on.
// Get returns (nil, nil) when the key does not exist. Implementations only
// guarantee eventual visibility of the latest write, not transactions.
type Store interface {
	// Get retrieves the value for a key, or nil when absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the value for a key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error
}

// GetWithMigration reads key, falling back to legacyKey for data written by
// earlier releases. A legacy hit is copied to the new key and the legacy key
// deleted, so migration happens exactly once, on first read.
func GetWithMigration(ctx context.Context, store Store, key, legacyKey string) ([]byte, error) {
	value, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if value != nil {
		return value, nil
	}

	legacy, err := store.Get(ctx, legacyKey)
	if err != nil || legacy == nil {
		return nil, err
	}

	if err := store.Set(ctx, key, legacy); err != nil {
		return nil, err
	}
	if err := store.Delete(ctx, legacyKey); err != nil {
		return nil, err
	}
	return legacy, nil
}
