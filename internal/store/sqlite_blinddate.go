package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/orincore/circle-core/internal/model"
)

func (s *SQLiteStore) CreateBlindDateMatch(ctx context.Context, m *model.BlindDateMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO blind_date_matches
		(id, user_a, user_b, status, message_count, reveal_threshold, user_a_revealed, user_b_revealed,
		 matched_at, chat_id, reminder_sent_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,NULL)`,
		m.ID, m.UserA, m.UserB, string(m.Status), m.MessageCount, m.RevealThreshold,
		boolInt(m.UserARevealed), boolInt(m.UserBRevealed), m.MatchedAt, m.ChatID)
	return err
}

func scanBlindDateRow(scan func(dest ...any) error) (*model.BlindDateMatch, error) {
	var m model.BlindDateMatch
	var status string
	var aRevealed, bRevealed int
	var reminderSentAt sql.NullTime
	if err := scan(&m.ID, &m.UserA, &m.UserB, &status, &m.MessageCount, &m.RevealThreshold,
		&aRevealed, &bRevealed, &m.MatchedAt, &m.ChatID, &reminderSentAt); err != nil {
		return nil, err
	}
	m.Status = model.BlindDateStatus(status)
	m.UserARevealed = aRevealed == 1
	m.UserBRevealed = bRevealed == 1
	if reminderSentAt.Valid {
		m.ReminderSentAt = &reminderSentAt.Time
	}
	return &m, nil
}

func (s *SQLiteStore) GetBlindDateMatch(ctx context.Context, id string) (*model.BlindDateMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, user_a, user_b, status, message_count, reveal_threshold,
		user_a_revealed, user_b_revealed, matched_at, chat_id, reminder_sent_at
		FROM blind_date_matches WHERE id=?`, id)
	m, err := scanBlindDateRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (s *SQLiteStore) UpdateBlindDateMatch(ctx context.Context, m *model.BlindDateMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reminderSentAt any
	if m.ReminderSentAt != nil {
		reminderSentAt = *m.ReminderSentAt
	}
	_, err := s.db.ExecContext(ctx, `UPDATE blind_date_matches SET status=?, message_count=?,
		user_a_revealed=?, user_b_revealed=?, reminder_sent_at=? WHERE id=?`,
		string(m.Status), m.MessageCount, boolInt(m.UserARevealed), boolInt(m.UserBRevealed),
		reminderSentAt, m.ID)
	return err
}

// BlindDateMatchByChatID finds the match owning chatID, if any. Used by the
// chat plane to decide whether an outbound message must clear the PII
// filter before it is persisted.
func (s *SQLiteStore) BlindDateMatchByChatID(ctx context.Context, chatID string) (*model.BlindDateMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, user_a, user_b, status, message_count, reveal_threshold,
		user_a_revealed, user_b_revealed, matched_at, chat_id, reminder_sent_at
		FROM blind_date_matches WHERE chat_id=?`, chatID)
	m, err := scanBlindDateRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// ActiveIdleMatches returns active matches created before the cutoff,
// candidates for the idle reminder sweep's 24h-idle check.
func (s *SQLiteStore) ActiveIdleMatches(ctx context.Context, createdBefore time.Time) ([]*model.BlindDateMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_a, user_b, status, message_count, reveal_threshold,
		user_a_revealed, user_b_revealed, matched_at, chat_id, reminder_sent_at
		FROM blind_date_matches WHERE status = ? AND matched_at <= ?`,
		string(model.BlindDateActive), createdBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.BlindDateMatch
	for rows.Next() {
		m, err := scanBlindDateRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
