package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/tracker/pkg/requestlog"
)

// MemoryStore implements requestlog.Backend using an in-memory slice.
// Intended for tests and for running without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*requestlog.Entry
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Append stores a copy of entry with a fresh ID and timestamp.
func (s *MemoryStore) Append(ctx context.Context, entry *requestlog.Entry) (*requestlog.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, requestlog.NewPersistenceError("memory", "append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	stored := entry.Clone()
	stored.ID = s.nextID
	stored.Timestamp = s.now().UTC()
	s.entries = append(s.entries, stored)

	return stored.Clone(), nil
}

// List returns at most limit entries for the deployment, newest first.
func (s *MemoryStore) List(ctx context.Context, projectID, deploymentID string, limit int) ([]*requestlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []*requestlog.Entry{}
	for _, e := range s.entries {
		if e.ProjectID == projectID && e.DeploymentID == deploymentID {
			results = append(results, e.Clone())
		}
	}

	sortNewestFirst(results)

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteAll removes every entry for the deployment.
func (s *MemoryStore) DeleteAll(ctx context.Context, projectID, deploymentID string) (int64, error) {
	return s.deleteWhere(func(e *requestlog.Entry) bool {
		return e.ProjectID == projectID && e.DeploymentID == deploymentID
	}), nil
}

// DeleteBefore removes entries older than cutoff.
func (s *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteWhere(func(e *requestlog.Entry) bool {
		return e.Timestamp.Before(cutoff)
	}), nil
}

// DeleteExcess keeps the newest keep entries of every deployment.
func (s *MemoryStore) DeleteExcess(ctx context.Context, keep int64) (int64, error) {
	s.mu.RLock()
	byDeployment := make(map[[2]string][]*requestlog.Entry)
	for _, e := range s.entries {
		k := [2]string{e.ProjectID, e.DeploymentID}
		byDeployment[k] = append(byDeployment[k], e)
	}
	s.mu.RUnlock()

	drop := make(map[int64]bool)
	for _, group := range byDeployment {
		sortNewestFirst(group)
		for i := keep; i < int64(len(group)); i++ {
			drop[group[i].ID] = true
		}
	}

	return s.deleteWhere(func(e *requestlog.Entry) bool {
		return drop[e.ID]
	}), nil
}

// Count returns the number of stored entries.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) deleteWhere(match func(*requestlog.Entry) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if match(e) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept
	return deleted
}

func sortNewestFirst(entries []*requestlog.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].ID > entries[j].ID
	})
}
