package urlcache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]Entry{}}
}

func (s *MemoryStore) Get(_ context.Context, url string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[url]
	return entry, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	if strings.TrimSpace(entry.URL) == "" {
		return fmt.Errorf("entry url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.URL] = entry
	return nil
}

func (s *MemoryStore) PurgeFailed(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, entry := range s.entries {
		if entry.Failed() && entry.FetchedAt.Before(olderThan) {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

// Len reports the number of entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
