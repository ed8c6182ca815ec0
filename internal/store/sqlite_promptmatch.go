package store

import (
	"context"
	"database/sql"

	"github.com/orincore/circle-core/internal/model"
)

func (s *SQLiteStore) UpsertGiverProfile(ctx context.Context, g *model.GiverProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO giver_profiles
		(user_id, skills, categories, embedding, helps_given, avg_rating, available)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET
			skills=excluded.skills, categories=excluded.categories, embedding=excluded.embedding,
			helps_given=excluded.helps_given, avg_rating=excluded.avg_rating, available=excluded.available`,
		g.UserID, joinSet(g.Skills), joinSet(g.Categories), encodeEmbedding(g.Embedding),
		g.HelpsGiven, g.AvgRating, boolInt(g.Available))
	return err
}

func scanGiverRow(scan func(dest ...any) error) (*model.GiverProfile, error) {
	var g model.GiverProfile
	var skills, categories sql.NullString
	var embedding []byte
	var available int
	if err := scan(&g.UserID, &skills, &categories, &embedding, &g.HelpsGiven, &g.AvgRating, &available); err != nil {
		return nil, err
	}
	g.Skills = splitSet(skills.String)
	g.Categories = splitSet(categories.String)
	g.Embedding = decodeEmbedding(embedding)
	g.Available = available == 1
	return &g, nil
}

func (s *SQLiteStore) GetGiverProfile(ctx context.Context, userID string) (*model.GiverProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT user_id, skills, categories, embedding, helps_given, avg_rating, available
		FROM giver_profiles WHERE user_id=?`, userID)
	g, err := scanGiverRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

// AvailableGivers returns a bounded candidate page, excluding the given set,
// for client-side cosine scoring in lieu of a native vector index.
func (s *SQLiteStore) AvailableGivers(ctx context.Context, excluding map[string]struct{}, limit int) ([]*model.GiverProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT user_id, skills, categories, embedding, helps_given, avg_rating, available
		FROM giver_profiles WHERE available = 1 LIMIT ?`, limit+len(excluding))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.GiverProfile
	for rows.Next() {
		g, err := scanGiverRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		if _, skip := excluding[g.UserID]; skip {
			continue
		}
		out = append(out, g)
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateHelpRequest(ctx context.Context, r *model.HelpRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO help_requests
		(id, receiver_id, prompt, embedding, status, attempts, declined_givers, matched_giver, chat_id, created_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.ReceiverID, r.Prompt, encodeEmbedding(r.Embedding), string(r.Status), r.Attempts,
		joinSet(r.DeclinedGivers), nullIfEmpty(r.MatchedGiver), nullIfEmpty(r.ChatID), r.CreatedAt, r.ExpiresAt)
	return err
}

func scanHelpRequestRow(scan func(dest ...any) error) (*model.HelpRequest, error) {
	var r model.HelpRequest
	var status string
	var declined sql.NullString
	var matchedGiver, chatID sql.NullString
	var embedding []byte
	if err := scan(&r.ID, &r.ReceiverID, &r.Prompt, &embedding, &status, &r.Attempts,
		&declined, &matchedGiver, &chatID, &r.CreatedAt, &r.ExpiresAt); err != nil {
		return nil, err
	}
	r.Status = model.HelpRequestStatus(status)
	r.DeclinedGivers = splitSet(declined.String)
	r.MatchedGiver = matchedGiver.String
	r.ChatID = chatID.String
	r.Embedding = decodeEmbedding(embedding)
	return &r, nil
}

func (s *SQLiteStore) GetHelpRequest(ctx context.Context, id string) (*model.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, receiver_id, prompt, embedding, status, attempts,
		declined_givers, matched_giver, chat_id, created_at, expires_at FROM help_requests WHERE id=?`, id)
	r, err := scanHelpRequestRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) UpdateHelpRequest(ctx context.Context, r *model.HelpRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE help_requests SET status=?, attempts=?, declined_givers=?,
		matched_giver=?, chat_id=? WHERE id=?`,
		string(r.Status), r.Attempts, joinSet(r.DeclinedGivers), nullIfEmpty(r.MatchedGiver), nullIfEmpty(r.ChatID), r.ID)
	return err
}

func (s *SQLiteStore) SearchingRequests(ctx context.Context) ([]*model.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, receiver_id, prompt, embedding, status, attempts,
		declined_givers, matched_giver, chat_id, created_at, expires_at FROM help_requests
		WHERE status=? ORDER BY created_at ASC`, string(model.HelpSearching))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.HelpRequest
	for rows.Next() {
		r, err := scanHelpRequestRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateAttempt(ctx context.Context, a *model.GiverAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO giver_attempts(request_id, giver_id, status, sent_at, responded_at)
		VALUES (?,?,?,?,NULL)`, a.RequestID, a.GiverID, string(a.Status), a.SentAt)
	return err
}

func (s *SQLiteStore) UpdateAttempt(ctx context.Context, a *model.GiverAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var responded sql.NullTime
	if a.RespondedAt != nil {
		responded = sql.NullTime{Time: *a.RespondedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `UPDATE giver_attempts SET status=?, responded_at=?
		WHERE request_id=? AND giver_id=?`, string(a.Status), responded, a.RequestID, a.GiverID)
	return err
}

func scanAttemptRow(scan func(dest ...any) error) (*model.GiverAttempt, error) {
	var a model.GiverAttempt
	var status string
	var responded sql.NullTime
	if err := scan(&a.RequestID, &a.GiverID, &status, &a.SentAt, &responded); err != nil {
		return nil, err
	}
	a.Status = model.GiverAttemptStatus(status)
	if responded.Valid {
		a.RespondedAt = &responded.Time
	}
	return &a, nil
}

// PendingAttemptForRequest enforces the single-offer serialization
// property: at most one pending attempt per request at any time.
func (s *SQLiteStore) PendingAttemptForRequest(ctx context.Context, requestID string) (*model.GiverAttempt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT request_id, giver_id, status, sent_at, responded_at
		FROM giver_attempts WHERE request_id=? AND status=? LIMIT 1`, requestID, string(model.AttemptPending))
	a, err := scanAttemptRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (s *SQLiteStore) AttemptsForRequest(ctx context.Context, requestID string) ([]*model.GiverAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT request_id, giver_id, status, sent_at, responded_at
		FROM giver_attempts WHERE request_id=? ORDER BY sent_at ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.GiverAttempt
	for rows.Next() {
		a, err := scanAttemptRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GiverHasPendingAttemptElsewhere(ctx context.Context, giverID, excludingRequestID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM giver_attempts
		WHERE giver_id=? AND status=? AND request_id != ?`, giverID, string(model.AttemptPending), excludingRequestID).Scan(&count)
	return count > 0, err
}
