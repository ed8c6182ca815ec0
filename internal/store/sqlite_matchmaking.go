package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/orincore/circle-core/internal/model"
)

// UpsertTicket is idempotent per user: enqueueing again overwrites the prior
// ticket's criteria and resets the queued-at clock.
func (s *SQLiteStore) UpsertTicket(ctx context.Context, t *model.MatchmakingTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO matchmaking_tickets
		(id, user_id, gender_pref, age_min, age_max, interests, location_hint, queued_at, heartbeat_at, claimed_by)
		VALUES (?,?,?,?,?,?,?,?,?,NULL)
		ON CONFLICT(user_id) DO UPDATE SET
			id=excluded.id, gender_pref=excluded.gender_pref, age_min=excluded.age_min,
			age_max=excluded.age_max, interests=excluded.interests, location_hint=excluded.location_hint,
			queued_at=excluded.queued_at, heartbeat_at=excluded.heartbeat_at, claimed_by=NULL`,
		t.ID, t.UserID, t.Criteria.GenderPreference, t.Criteria.AgeMin, t.Criteria.AgeMax,
		joinSet(t.Criteria.Interests), t.Criteria.LocationHint, t.QueuedAt, t.HeartbeatAt)
	return err
}

func (s *SQLiteStore) DeleteTicket(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM matchmaking_tickets WHERE user_id=?`, userID)
	return err
}

func scanTicketRow(scan func(dest ...any) error) (*model.MatchmakingTicket, error) {
	var t model.MatchmakingTicket
	var interests sql.NullString
	var claimedBy sql.NullString
	if err := scan(&t.ID, &t.UserID, &t.Criteria.GenderPreference, &t.Criteria.AgeMin, &t.Criteria.AgeMax,
		&interests, &t.Criteria.LocationHint, &t.QueuedAt, &t.HeartbeatAt, &claimedBy); err != nil {
		return nil, err
	}
	t.Criteria.Interests = splitSet(interests.String)
	t.ClaimedBy = claimedBy.String
	return &t, nil
}

func (s *SQLiteStore) GetTicket(ctx context.Context, userID string) (*model.MatchmakingTicket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, gender_pref, age_min, age_max, interests,
		location_hint, queued_at, heartbeat_at, claimed_by FROM matchmaking_tickets WHERE user_id=?`, userID)
	t, err := scanTicketRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// LiveTickets returns every ticket whose heartbeat has not gone stale,
// ordered oldest-queued-first.
func (s *SQLiteStore) LiveTickets(ctx context.Context, staleCutoff time.Time) ([]*model.MatchmakingTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, gender_pref, age_min, age_max, interests,
		location_hint, queued_at, heartbeat_at, claimed_by FROM matchmaking_tickets
		WHERE heartbeat_at >= ? ORDER BY queued_at ASC`, staleCutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.MatchmakingTicket
	for rows.Next() {
		t, err := scanTicketRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) HeartbeatTicket(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE matchmaking_tickets SET heartbeat_at=? WHERE user_id=?`, at, userID)
	return err
}

func (s *SQLiteStore) CreateProposal(ctx context.Context, p *model.MatchProposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO match_proposals
		(id, user_a, user_b, a_accepted, b_accepted, status, created_at, chat_id)
		VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.UserA, p.UserB, boolInt(p.AAccepted), boolInt(p.BAccepted), string(p.Status), p.CreatedAt, nullIfEmpty(p.ChatID))
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanProposalRow(scan func(dest ...any) error) (*model.MatchProposal, error) {
	var p model.MatchProposal
	var aAccepted, bAccepted int
	var status string
	var chatID sql.NullString
	if err := scan(&p.ID, &p.UserA, &p.UserB, &aAccepted, &bAccepted, &status, &p.CreatedAt, &chatID); err != nil {
		return nil, err
	}
	p.AAccepted = aAccepted == 1
	p.BAccepted = bAccepted == 1
	p.Status = model.MatchProposalStatus(status)
	p.ChatID = chatID.String
	return &p, nil
}

func (s *SQLiteStore) GetProposal(ctx context.Context, id string) (*model.MatchProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, user_a, user_b, a_accepted, b_accepted, status, created_at, chat_id
		FROM match_proposals WHERE id=?`, id)
	p, err := scanProposalRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) UpdateProposal(ctx context.Context, p *model.MatchProposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE match_proposals SET a_accepted=?, b_accepted=?, status=?, chat_id=?
		WHERE id=?`, boolInt(p.AAccepted), boolInt(p.BAccepted), string(p.Status), nullIfEmpty(p.ChatID), p.ID)
	return err
}

// ProposalForUser finds the open proposal (if any) targeting userID, used
// to serve onProposal push events and reconnect polling.
func (s *SQLiteStore) ProposalForUser(ctx context.Context, userID string) (*model.MatchProposal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, user_a, user_b, a_accepted, b_accepted, status, created_at, chat_id
		FROM match_proposals WHERE (user_a=? OR user_b=?) AND status=? ORDER BY created_at DESC LIMIT 1`,
		userID, userID, string(model.ProposalOpen))
	p, err := scanProposalRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (s *SQLiteStore) OpenProposalsOlderThan(ctx context.Context, cutoff time.Time) ([]*model.MatchProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_a, user_b, a_accepted, b_accepted, status, created_at, chat_id
		FROM match_proposals WHERE status=? AND created_at <= ?`, string(model.ProposalOpen), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.MatchProposal
	for rows.Next() {
		p, err := scanProposalRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
