package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/forum/internal/smiley"
)

// SmileyStore reads and imports rows of the smileys table.
type SmileyStore struct {
	pool *pgxpool.Pool
}

func NewSmileyStore(pool *pgxpool.Pool) *SmileyStore {
	return &SmileyStore{pool: pool}
}

var _ smiley.Source = (*SmileyStore)(nil)

func (s *SmileyStore) List(ctx context.Context) ([]smiley.Smiley, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, code, path, thought, sort_order FROM smileys ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list smileys: %w", err)
	}
	defer rows.Close()
	var out []smiley.Smiley
	for rows.Next() {
		var sm smiley.Smiley
		if err := rows.Scan(&sm.ID, &sm.Code, &sm.Path, &sm.Thought, &sm.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Import upserts items by code in one transaction and returns the number of
// rows written.
func (s *SmileyStore) Import(ctx context.Context, items []smiley.Smiley) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	for _, sm := range items {
		if sm.Code == "" {
			return 0, smiley.ErrEmptyCode
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO smileys (code, path, thought, sort_order) VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO UPDATE SET path = EXCLUDED.path, thought = EXCLUDED.thought, sort_order = EXCLUDED.sort_order`,
			sm.Code, sm.Path, sm.Thought, sm.SortOrder,
		); err != nil {
			return 0, fmt.Errorf("import smiley %q: %w", sm.Code, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(items), nil
}
