package smiley

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"
)

// Snapshot is an immutable view of the smiley set. The processor reads a single
// snapshot per message so a concurrent reload never mixes two sets.
type Snapshot struct {
	byCode map[string]Smiley
	codes  []string
	all    []Smiley
}

// NewSnapshot validates items and indexes them by code.
func NewSnapshot(items []Smiley) (*Snapshot, error) {
	s := &Snapshot{
		byCode: make(map[string]Smiley, len(items)),
		codes:  make([]string, 0, len(items)),
		all:    make([]Smiley, 0, len(items)),
	}
	for _, item := range items {
		code := strings.TrimSpace(item.Code)
		if code == "" {
			return nil, ErrEmptyCode
		}
		if strings.IndexFunc(code, unicode.IsSpace) >= 0 {
			return nil, fmt.Errorf("smiley code %q contains whitespace", code)
		}
		if _, exists := s.byCode[code]; exists {
			return nil, fmt.Errorf("duplicate smiley code %q", code)
		}
		item.Code = code
		s.byCode[code] = item
		s.codes = append(s.codes, code)
		s.all = append(s.all, item)
	}
	// Longest first so ":))" is tried before ":)".
	sort.Slice(s.codes, func(i, j int) bool {
		if len(s.codes[i]) != len(s.codes[j]) {
			return len(s.codes[i]) > len(s.codes[j])
		}
		return s.codes[i] < s.codes[j]
	})
	sort.SliceStable(s.all, func(i, j int) bool { return s.all[i].SortOrder < s.all[j].SortOrder })
	return s, nil
}

// Lookup returns the smiley registered for code.
func (s *Snapshot) Lookup(code string) (Smiley, bool) {
	if s == nil {
		return Smiley{}, false
	}
	item, ok := s.byCode[code]
	return item, ok
}

// Codes returns codes ordered longest first.
func (s *Snapshot) Codes() []string {
	if s == nil {
		return nil
	}
	return s.codes
}

// List returns smileys in selector order.
func (s *Snapshot) List() []Smiley {
	if s == nil {
		return nil
	}
	out := make([]Smiley, len(s.all))
	copy(out, s.all)
	return out
}

// Len reports the number of smileys.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.all)
}

// MatchAt returns the longest registered code that starts at text[i:] and
// whose end offset is accepted by delimited. A nil delimited accepts any end.
func (s *Snapshot) MatchAt(text string, i int, delimited func(end int) bool) (Smiley, bool) {
	if s == nil {
		return Smiley{}, false
	}
	rest := text[i:]
	for _, code := range s.codes {
		if !strings.HasPrefix(rest, code) {
			continue
		}
		if delimited == nil || delimited(i+len(code)) {
			return s.byCode[code], true
		}
	}
	return Smiley{}, false
}

// Map owns the process-wide smiley set. Reads are lock free; Reload swaps
// the snapshot atomically.
type Map struct {
	source  Source
	logger  *slog.Logger
	current atomic.Pointer[Snapshot]
}

// NewMap creates a Map backed by source. The map is empty until Reload.
func NewMap(log *slog.Logger, source Source) *Map {
	if log == nil {
		log = slog.Default()
	}
	m := &Map{
		source: source,
		logger: log.With(slog.String("service", "smiley")),
	}
	empty, _ := NewSnapshot(nil)
	m.current.Store(empty)
	return m
}

// Snapshot returns the current smiley set.
func (m *Map) Snapshot() *Snapshot {
	return m.current.Load()
}

// Reload reads the source and replaces the current snapshot. On error the
// previous snapshot is kept.
func (m *Map) Reload(ctx context.Context) error {
	if m.source == nil {
		return fmt.Errorf("smiley source is not configured")
	}
	items, err := m.source.List(ctx)
	if err != nil {
		return fmt.Errorf("list smileys: %w", err)
	}
	snap, err := NewSnapshot(items)
	if err != nil {
		return err
	}
	m.current.Store(snap)
	m.logger.Info("smileys loaded", slog.Int("count", snap.Len()))
	return nil
}
