package cache

import (
	"context"
	"errors"
	"slices"
	"sync"

	"example.com/socialfeed/internal/feed"
)

// MockCache keeps feeds in memory and records invalidations. Generations
// follow the same rules as RedisFeedCache.
type MockCache struct {
	mu          sync.Mutex
	Feeds       map[string][]feed.Entry
	Gens        map[string]int64
	Invalidated []string
	ShouldFail  bool
}

func NewMock() *MockCache {
	return &MockCache{
		Feeds: make(map[string][]feed.Entry),
		Gens:  make(map[string]int64),
	}
}

func (m *MockCache) Get(ctx context.Context, viewerID string) ([]feed.Entry, bool, error) {
	if m.ShouldFail {
		return nil, false, errors.New("mock cache get failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.Feeds[viewerID]
	return slices.Clone(entries), ok, nil
}

func (m *MockCache) Generation(ctx context.Context, viewerID string) (int64, error) {
	if m.ShouldFail {
		return 0, errors.New("mock cache generation failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Gens[viewerID], nil
}

func (m *MockCache) Set(ctx context.Context, viewerID string, gen int64, entries []feed.Entry) error {
	if m.ShouldFail {
		return errors.New("mock cache set failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Gens[viewerID] != gen {
		return ErrStaleGeneration
	}
	m.Feeds[viewerID] = slices.Clone(entries)
	return nil
}

func (m *MockCache) Invalidate(ctx context.Context, viewerIDs ...string) error {
	if m.ShouldFail {
		return errors.New("mock cache invalidate failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range viewerIDs {
		delete(m.Feeds, id)
		m.Gens[id]++
		m.Invalidated = append(m.Invalidated, id)
	}
	return nil
}

// InvalidatedIDs returns a copy of every invalidated viewer id, in call order.
func (m *MockCache) InvalidatedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Invalidated)
}

func (m *MockCache) Close() error { return nil }
