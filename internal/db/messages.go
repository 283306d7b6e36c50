package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/forum/internal/card"
	"github.com/memohai/forum/internal/message"
)

const messageColumns = `id, original_body, display_body, short_preview, long_preview, cards,
	processed, deleted, version, created_at, updated_at, processed_at`

// MessageStore implements message.Store on the messages table.
type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

var _ message.Store = (*MessageStore)(nil)

func (s *MessageStore) Create(ctx context.Context, m message.Message) (message.Message, error) {
	cards, err := encodeCards(m.Cards)
	if err != nil {
		return message.Message{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (original_body, display_body, short_preview, long_preview, cards, processed, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+messageColumns,
		m.OriginalBody, m.DisplayBody, m.ShortPreview, m.LongPreview, cards, m.Processed, nullTime(m.ProcessedAt),
	)
	return scanMessage(row)
}

func (s *MessageStore) Get(ctx context.Context, id int64) (message.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return message.Message{}, message.ErrNotFound
	}
	return m, err
}

func (s *MessageStore) Count(ctx context.Context, f message.Filter) (int, error) {
	where, args := filterClause(f, nil)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM messages WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (s *MessageStore) MaxID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(max(id), 0) FROM messages`).Scan(&id); err != nil {
		return 0, fmt.Errorf("max message id: %w", err)
	}
	return id, nil
}

func (s *MessageStore) ListPage(ctx context.Context, q message.PageQuery) ([]message.Message, error) {
	where, args := filterClause(q.Filter, nil)
	if q.Before > 0 {
		args = append(args, q.Before)
		where += fmt.Sprintf(" AND id < $%d", len(args))
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE ` + where + ` ORDER BY id DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return collectMessages(rows)
}

func (s *MessageStore) Load(ctx context.Context, ids []int64) ([]message.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ANY($1) ORDER BY id DESC`, ids)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return collectMessages(rows)
}

// SaveAll locks the target rows, compares versions and writes every row in
// one transaction. Any version mismatch rolls the whole batch back.
func (s *MessageStore) SaveAll(ctx context.Context, msgs []message.Message) (message.SaveResult, error) {
	if len(msgs) == 0 {
		return message.SaveResult{}, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return message.SaveResult{}, fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	// Lock in id order so concurrent batches cannot deadlock.
	rows, err := tx.Query(ctx, `SELECT id, version, deleted FROM messages WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return message.SaveResult{}, fmt.Errorf("lock messages: %w", err)
	}
	type lockedRow struct {
		version int64
		deleted bool
	}
	locked := map[int64]lockedRow{}
	for rows.Next() {
		var (
			id  int64
			row lockedRow
		)
		if err := rows.Scan(&id, &row.version, &row.deleted); err != nil {
			rows.Close()
			return message.SaveResult{}, err
		}
		locked[id] = row
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return message.SaveResult{}, err
	}

	var (
		res       message.SaveResult
		conflicts []int64
		pending   []message.Message
	)
	for _, m := range msgs {
		row, ok := locked[m.ID]
		switch {
		case !ok || row.deleted:
			res.Skipped = append(res.Skipped, m.ID)
		case row.version != m.Version:
			conflicts = append(conflicts, m.ID)
		default:
			pending = append(pending, m)
		}
	}
	if len(conflicts) > 0 {
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i] < conflicts[j] })
		return message.SaveResult{}, &message.ConflictError{IDs: conflicts}
	}

	for _, m := range pending {
		cards, err := encodeCards(m.Cards)
		if err != nil {
			return message.SaveResult{}, err
		}
		saved, err := scanMessage(tx.QueryRow(ctx, `
			UPDATE messages
			SET original_body = $2, display_body = $3, short_preview = $4, long_preview = $5, cards = $6,
				processed = $7, deleted = $8, processed_at = $9, version = version + 1, updated_at = now()
			WHERE id = $1
			RETURNING `+messageColumns,
			m.ID, m.OriginalBody, m.DisplayBody, m.ShortPreview, m.LongPreview, cards,
			m.Processed, m.Deleted, nullTime(m.ProcessedAt),
		))
		if err != nil {
			return message.SaveResult{}, fmt.Errorf("update message %d: %w", m.ID, err)
		}
		res.Saved = append(res.Saved, saved)
	}
	if err := tx.Commit(ctx); err != nil {
		return message.SaveResult{}, fmt.Errorf("commit save: %w", err)
	}
	return res, nil
}

func filterClause(f message.Filter, args []any) (string, []any) {
	parts := []string{"NOT deleted"}
	if f.Unprocessed {
		parts = append(parts, "NOT processed")
	}
	if f.MaxID > 0 {
		args = append(args, f.MaxID)
		parts = append(parts, fmt.Sprintf("id <= $%d", len(args)))
	}
	return strings.Join(parts, " AND "), args
}

func scanMessage(row pgx.Row) (message.Message, error) {
	var (
		m           message.Message
		cards       []byte
		processedAt *time.Time
	)
	if err := row.Scan(&m.ID, &m.OriginalBody, &m.DisplayBody, &m.ShortPreview, &m.LongPreview, &cards,
		&m.Processed, &m.Deleted, &m.Version, &m.CreatedAt, &m.UpdatedAt, &processedAt); err != nil {
		return message.Message{}, err
	}
	if err := json.Unmarshal(cards, &m.Cards); err != nil {
		return message.Message{}, fmt.Errorf("decode cards of message %d: %w", m.ID, err)
	}
	if m.Cards == nil {
		m.Cards = []card.Card{}
	}
	if processedAt != nil {
		m.ProcessedAt = *processedAt
	}
	return m, nil
}

func collectMessages(rows pgx.Rows) ([]message.Message, error) {
	defer rows.Close()
	var out []message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func encodeCards(cards []card.Card) ([]byte, error) {
	if cards == nil {
		cards = []card.Card{}
	}
	b, err := json.Marshal(cards)
	if err != nil {
		return nil, fmt.Errorf("encode cards: %w", err)
	}
	return b, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
