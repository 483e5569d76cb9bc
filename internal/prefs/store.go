package prefs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Well-known keys in the durable store.
const (
	KeyAuthToken       = "auth.token"
	KeyHiddenAnalytics = "analytics.hidden"
	KeyHiddenIncidents = "incidents.hidden"
)

// Store is a durable string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// LoadJSON decodes key into dst. Absent, unreadable or corrupt values
// leave dst untouched and report false.
func LoadJSON(ctx context.Context, store Store, key string, dst any, logger *slog.Logger) bool {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		if logger != nil {
			logger.Warn("read persisted value failed", "key", key, "err", err)
		}
		return false
	}
	if !ok || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		if logger != nil {
			logger.Debug("ignoring corrupt persisted value", "key", key, "err", err)
		}
		return false
	}
	return true
}

// SaveJSON encodes value under key.
func SaveJSON(ctx context.Context, store Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(raw))
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
