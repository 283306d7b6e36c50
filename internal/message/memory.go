package message

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and the CLI dry run.
type MemoryStore struct {
	mu       sync.Mutex
	rows     map[int64]Message
	nextID   int64
	saves    int
	saveHook func(call int)

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[int64]Message{}, now: time.Now}
}

// SetSaveHook installs fn to run at the start of every SaveAll call, before
// versions are compared. fn may call Mutate to simulate a concurrent writer.
func (s *MemoryStore) SetSaveHook(fn func(call int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveHook = fn
}

// Mutate changes a stored row in place and bumps its version, as a
// concurrent writer would.
func (s *MemoryStore) Mutate(id int64, fn func(m *Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	fn(&m)
	m.Version++
	m.UpdatedAt = s.now()
	s.rows[id] = m
	return nil
}

// Saves reports how many SaveAll calls were made.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Create(_ context.Context, m Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.now()
	m.ID = s.nextID
	m.Version = 1
	m.CreatedAt = now
	m.UpdatedAt = now
	s.rows[m.ID] = m
	return m, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) Count(_ context.Context, f Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.rows {
		if matches(m, f) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MaxID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for id := range s.rows {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (s *MemoryStore) ListPage(_ context.Context, q PageQuery) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, q.Limit)
	for _, m := range s.rows {
		if !matches(m, q.Filter) || (q.Before > 0 && m.ID >= q.Before) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Load(_ context.Context, ids []int64) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.rows[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveAll(_ context.Context, msgs []Message) (SaveResult, error) {
	s.mu.Lock()
	s.saves++
	call, hook := s.saves, s.saveHook
	s.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		res       SaveResult
		conflicts []int64
		pending   []Message
	)
	for _, m := range msgs {
		stored, ok := s.rows[m.ID]
		switch {
		case !ok || stored.Deleted:
			res.Skipped = append(res.Skipped, m.ID)
		case stored.Version != m.Version:
			conflicts = append(conflicts, m.ID)
		default:
			pending = append(pending, m)
		}
	}
	if len(conflicts) > 0 {
		return SaveResult{}, &ConflictError{IDs: conflicts}
	}
	now := s.now()
	for _, m := range pending {
		m.Version++
		m.UpdatedAt = now
		s.rows[m.ID] = m
		res.Saved = append(res.Saved, m)
	}
	return res, nil
}

func matches(m Message, f Filter) bool {
	if m.Deleted {
		return false
	}
	if f.Unprocessed && m.Processed {
		return false
	}
	return f.MaxID <= 0 || m.ID <= f.MaxID
}
