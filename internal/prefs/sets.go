package prefs

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/tagwatch/console-sync/internal/model"
)

// KeySet is the persisted HiddenAnalyticsSet. Members are normalized
// analytic-type keys.
type KeySet struct {
	store  Store
	key    string
	logger *slog.Logger

	mu      sync.RWMutex
	members map[string]struct{}
}

// LoadKeySet reads the set once; later mutations write through.
func LoadKeySet(ctx context.Context, store Store, key string, logger *slog.Logger) *KeySet {
	s := &KeySet{store: store, key: key, logger: logger, members: map[string]struct{}{}}
	var raw []string
	if LoadJSON(ctx, store, key, &raw, logger) {
		for _, item := range raw {
			if normalized := model.NormalizeAnalyticKey(item); normalized != "" {
				s.members[normalized] = struct{}{}
			}
		}
	}
	return s
}

func (s *KeySet) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[model.NormalizeAnalyticKey(key)]
	return ok
}

// Members returns a sorted copy.
func (s *KeySet) Members() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.members))
	for key := range s.members {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Set adds or removes key. It reports whether membership changed.
func (s *KeySet) Set(ctx context.Context, key string, hidden bool) (bool, error) {
	normalized := model.NormalizeAnalyticKey(key)
	if normalized == "" {
		return false, nil
	}

	s.mu.Lock()
	_, present := s.members[normalized]
	if present == hidden {
		s.mu.Unlock()
		return false, nil
	}
	if hidden {
		s.members[normalized] = struct{}{}
	} else {
		delete(s.members, normalized)
	}
	snapshot := sortedKeys(s.members)
	s.mu.Unlock()

	return true, SaveJSON(ctx, s.store, s.key, snapshot)
}

func sortedKeys(members map[string]struct{}) []string {
	out := make([]string, 0, len(members))
	for key := range members {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// IDSet is the persisted set of dismissed incident ids.
type IDSet struct {
	store  Store
	key    string
	logger *slog.Logger

	mu      sync.RWMutex
	members map[int64]struct{}
}

func LoadIDSet(ctx context.Context, store Store, key string, logger *slog.Logger) *IDSet {
	s := &IDSet{store: store, key: key, logger: logger, members: map[int64]struct{}{}}
	var raw []int64
	if LoadJSON(ctx, store, key, &raw, logger) {
		for _, id := range raw {
			s.members[id] = struct{}{}
		}
	}
	return s
}

func (s *IDSet) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[id]
	return ok
}

func (s *IDSet) Members() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.members)
}

func (s *IDSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Add inserts ids and persists when anything changed.
func (s *IDSet) Add(ctx context.Context, ids ...int64) error {
	return s.mutate(ctx, ids, true)
}

// Remove deletes ids and persists when anything changed.
func (s *IDSet) Remove(ctx context.Context, ids ...int64) error {
	return s.mutate(ctx, ids, false)
}

func (s *IDSet) mutate(ctx context.Context, ids []int64, add bool) error {
	s.mu.Lock()
	changed := false
	for _, id := range ids {
		_, present := s.members[id]
		switch {
		case add && !present:
			s.members[id] = struct{}{}
			changed = true
		case !add && present:
			delete(s.members, id)
			changed = true
		}
	}
	snapshot := sortedIDs(s.members)
	s.mu.Unlock()

	if !changed {
		return nil
	}
	return SaveJSON(ctx, s.store, s.key, snapshot)
}

func sortedIDs(members map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
