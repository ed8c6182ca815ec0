// Package blinddate implements the Blind-Date Session state machine:
// pairing → active → revealed | ended, with a PII filter gating every
// outbound message while active and a 6h idle-reminder sweep.
//
// Grounded on the model.BlindDateMatch invariants (reveal flags monotonic,
// revealed ⇒ both flags true) and on internal/matchmaking's proposal
// lifecycle for the shape of a Store-backed, event-sink-notified state
// transition.
package blinddate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orincore/circle-core/internal/apperr"
	"github.com/orincore/circle-core/internal/events"
	"github.com/orincore/circle-core/internal/logging"
	"github.com/orincore/circle-core/internal/model"
	"github.com/orincore/circle-core/internal/store"
)

// Config tunes the reminder sweep.
type Config struct {
	RevealThreshold   int
	ReminderInterval  time.Duration
	ReminderAfterIdle time.Duration
}

// Reminder is the external push/e-mail collaborator for idle nudges.
// Never implemented here.
type Reminder interface {
	SendReminder(ctx context.Context, userA, userB, matchID string) error
}

// Session is the Blind-Date Session contract plus its reminder worker.
type Session struct {
	store    store.Store
	sink     events.Sink
	reminder Reminder
	cfg      Config
}

// NewSession builds a Session over the given collaborators.
func NewSession(s store.Store, sink events.Sink, reminder Reminder, cfg Config) *Session {
	return &Session{store: s, sink: sink, reminder: reminder, cfg: cfg}
}

// Name identifies this session machine as a worker.Worker.
func (s *Session) Name() string { return "blinddate" }

// Create pairs two users into a new active anonymized match.
func (s *Session) Create(ctx context.Context, userA, userB string) (*model.BlindDateMatch, error) {
	chat, err := s.store.GetOrCreateChat(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	m := &model.BlindDateMatch{
		ID: uuid.NewString(), UserA: userA, UserB: userB,
		Status: model.BlindDateActive, RevealThreshold: s.cfg.RevealThreshold,
		MatchedAt: time.Now().UTC(), ChatID: chat.ID,
	}
	if err := s.store.CreateBlindDateMatch(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CheckMessage runs the PII filter and, on success, increments the match's
// message count. It is the Chat Plane's gate for messages sent inside a
// still-anonymized match; callers must not persist the message unless the
// returned result is Allowed.
func (s *Session) CheckMessage(ctx context.Context, matchID, text string) (PIIResult, error) {
	m, err := s.store.GetBlindDateMatch(ctx, matchID)
	if err != nil {
		return PIIResult{}, err
	}
	if m == nil || m.Status != model.BlindDateActive {
		return PIIResult{Allowed: true}, nil
	}
	result := FilterMessage(text)
	if !result.Allowed {
		return result, nil
	}
	m.MessageCount++
	if err := s.store.UpdateBlindDateMatch(ctx, m); err != nil {
		return result, err
	}
	return result, nil
}

// RequestReveal sets the caller's reveal flag; once both flags are true the
// match transitions to revealed and an accepted friendship is created as a
// side effect.
func (s *Session) RequestReveal(ctx context.Context, matchID, userID string) error {
	m, err := s.store.GetBlindDateMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if m == nil || (userID != m.UserA && userID != m.UserB) {
		return apperr.New(apperr.Forbidden, "not a party to this match")
	}
	if m.Status != model.BlindDateActive {
		return apperr.New(apperr.Forbidden, "match is not active")
	}
	if !m.RevealAvailable() {
		return apperr.New(apperr.Forbidden, "reveal not yet available")
	}

	if userID == m.UserA {
		m.UserARevealed = true
	} else {
		m.UserBRevealed = true
	}

	if m.UserARevealed && m.UserBRevealed {
		m.Status = model.BlindDateRevealed
		lo, hi := model.CanonicalPair(m.UserA, m.UserB)
		if err := s.store.UpsertFriendship(ctx, &model.Friendship{
			User1: lo, User2: hi, Sender: userID, Status: model.FriendshipAccepted,
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		if err := s.store.UpdateBlindDateMatch(ctx, m); err != nil {
			return err
		}
		s.emit(ctx, m.UserA, "revealed", matchID)
		s.emit(ctx, m.UserB, "revealed", matchID)
		return nil
	}

	if err := s.store.UpdateBlindDateMatch(ctx, m); err != nil {
		return err
	}
	s.emit(ctx, m.OtherUser(userID), "reveal_requested", matchID)
	return nil
}

// End transitions the match to ended from any state.
func (s *Session) End(ctx context.Context, matchID, userID string) error {
	m, err := s.store.GetBlindDateMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	if userID != m.UserA && userID != m.UserB {
		return apperr.New(apperr.Forbidden, "not a party to this match")
	}
	m.Status = model.BlindDateEnded
	if err := s.store.UpdateBlindDateMatch(ctx, m); err != nil {
		return err
	}
	s.emit(ctx, m.OtherUser(userID), "match_ended", matchID)
	return nil
}

func (s *Session) emit(ctx context.Context, userID, kind, matchID string) {
	if err := s.sink.Emit(ctx, userID, kind, map[string]any{"matchId": matchID}); err != nil {
		logging.Get(logging.CategoryBlindDate).Warn("emit %s to %s: %v", kind, userID, err)
	}
}

// Tick runs the 6h reminder sweep: active matches idle (zero
// messages) for 24h get one reminder each, deduplicated via
// reminder_sent_at.
func (s *Session) Tick(ctx context.Context, lease string) error {
	now := time.Now().UTC()
	matches, err := s.store.ActiveIdleMatches(ctx, now.Add(-s.cfg.ReminderAfterIdle))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if m.MessageCount != 0 || m.ReminderSentAt != nil {
			continue
		}
		if err := s.reminder.SendReminder(ctx, m.UserA, m.UserB, m.ID); err != nil {
			logging.Get(logging.CategoryBlindDate).Warn("reminder send failed for %s: %v", m.ID, err)
			continue
		}
		sentAt := now
		m.ReminderSentAt = &sentAt
		if err := s.store.UpdateBlindDateMatch(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
