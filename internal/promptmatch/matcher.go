// Package promptmatch implements the Prompt Matcher: a receiver publishes
// a help prompt, and a serial fan-out loop offers it to exactly one
// available giver at a time until accepted, exhausted, or expired.
//
// Grounded on internal/scorer (this repo's own
// deterministic embedding/cosine package) for candidate ranking, and on the
// single-pending-attempt invariant the same way
// internal/store/sqlite_promptmatch.go's PendingAttemptForRequest query
// enforces it at the persistence layer.
package promptmatch

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/orincore/circle-core/internal/apperr"
	"github.com/orincore/circle-core/internal/events"
	"github.com/orincore/circle-core/internal/logging"
	"github.com/orincore/circle-core/internal/model"
	"github.com/orincore/circle-core/internal/scorer"
	"github.com/orincore/circle-core/internal/store"
)

// Config tunes the matcher's timing.
type Config struct {
	TickInterval    time.Duration
	ResponseWindow  time.Duration
	RequestLifetime time.Duration
}

// Matcher is the Prompt Matcher contract plus its serial fan-out loop.
type Matcher struct {
	store store.Store
	sink  events.Sink
	cfg   Config
}

// NewMatcher builds a Matcher over the given collaborators.
func NewMatcher(s store.Store, sink events.Sink, cfg Config) *Matcher {
	return &Matcher{store: s, sink: sink, cfg: cfg}
}

// Name identifies this matcher as a worker.Worker.
func (m *Matcher) Name() string { return "promptmatch" }

// PublishRequest creates a HelpRequest and computes its embedding.
func (m *Matcher) PublishRequest(ctx context.Context, receiverID, prompt string) (string, error) {
	now := time.Now().UTC()
	r := &model.HelpRequest{
		ID:         uuid.NewString(),
		ReceiverID: receiverID,
		Prompt:     prompt,
		Embedding:  scorer.Embed(prompt),
		Status:     model.HelpSearching,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.cfg.RequestLifetime),
	}
	if err := m.store.CreateHelpRequest(ctx, r); err != nil {
		return "", err
	}
	return r.ID, nil
}

// Respond records a giver's decision on a pending attempt. On accept the
// request transitions to matched and a 1:1 chat is created; on decline the
// giver joins the decline-set and the next tick offers the request again.
func (m *Matcher) Respond(ctx context.Context, requestID, giverID string, accepted bool) error {
	attempt, ok, err := m.store.PendingAttemptForRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !ok || attempt.GiverID != giverID {
		return apperr.New(apperr.Forbidden, "no pending attempt for this giver")
	}
	r, err := m.store.GetHelpRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if r == nil {
		return apperr.New(apperr.Forbidden, "request not found")
	}

	now := time.Now().UTC()
	attempt.RespondedAt = &now
	if !accepted {
		attempt.Status = model.AttemptDeclined
		if err := m.store.UpdateAttempt(ctx, attempt); err != nil {
			return err
		}
		r.DeclinedGivers[giverID] = struct{}{}
		return m.store.UpdateHelpRequest(ctx, r)
	}

	attempt.Status = model.AttemptAccepted
	if err := m.store.UpdateAttempt(ctx, attempt); err != nil {
		return err
	}
	chat, err := m.store.GetOrCreateChat(ctx, r.ReceiverID, giverID)
	if err != nil {
		return err
	}
	r.Status = model.HelpMatched
	r.MatchedGiver = giverID
	r.ChatID = chat.ID
	if err := m.store.UpdateHelpRequest(ctx, r); err != nil {
		return err
	}
	payload := map[string]any{"requestId": r.ID, "chatId": chat.ID}
	if err := m.sink.Emit(ctx, r.ReceiverID, "matched", payload); err != nil {
		logging.Get(logging.CategoryPromptMatch).Warn("emit matched to %s: %v", r.ReceiverID, err)
	}
	if err := m.sink.Emit(ctx, giverID, "matched", payload); err != nil {
		logging.Get(logging.CategoryPromptMatch).Warn("emit matched to %s: %v", giverID, err)
	}
	return nil
}

// CancelRequest marks the request cancelled and expires its pending
// attempt, if any, so the offered giver is free for other requests.
func (m *Matcher) CancelRequest(ctx context.Context, requestID, receiverID string) error {
	r, err := m.store.GetHelpRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	if r.ReceiverID != receiverID {
		return apperr.New(apperr.Forbidden, "not this request's receiver")
	}
	r.Status = model.HelpCancelled
	if err := m.store.UpdateHelpRequest(ctx, r); err != nil {
		return err
	}
	pending, ok, err := m.store.PendingAttemptForRequest(ctx, requestID)
	if err != nil || !ok {
		return err
	}
	now := time.Now().UTC()
	pending.Status = model.AttemptExpired
	pending.RespondedAt = &now
	return m.store.UpdateAttempt(ctx, pending)
}

// Tick runs one serial fan-out iteration over every searching request: a
// request past its deadline is expired; otherwise a pending attempt still
// inside its response window is left alone, an overdue one is expired, and
// the next candidate is offered.
func (m *Matcher) Tick(ctx context.Context, lease string) error {
	now := time.Now().UTC()
	requests, err := m.store.SearchingRequests(ctx)
	if err != nil {
		return err
	}
	for _, r := range requests {
		if err := m.tickOne(ctx, r, now); err != nil {
			return err
		}
	}
	return nil
}

func (m *Matcher) tickOne(ctx context.Context, r *model.HelpRequest, now time.Time) error {
	if now.After(r.ExpiresAt) {
		r.Status = model.HelpExpired
		return m.store.UpdateHelpRequest(ctx, r)
	}

	pending, ok, err := m.store.PendingAttemptForRequest(ctx, r.ID)
	if err != nil {
		return err
	}
	if ok {
		if now.Sub(pending.SentAt) < m.cfg.ResponseWindow {
			return nil
		}
		pending.Status = model.AttemptExpired
		expiredAt := now
		pending.RespondedAt = &expiredAt
		if err := m.store.UpdateAttempt(ctx, pending); err != nil {
			return err
		}
		r.DeclinedGivers[pending.GiverID] = struct{}{}
		logging.Get(logging.CategoryPromptMatch).Info("attempt %s/%s expired", r.ID, pending.GiverID)
	}

	candidate, err := m.nextCandidate(ctx, r)
	if err != nil {
		return err
	}
	if candidate == nil {
		// no candidate pool and, by construction at this point, no
		// pending attempt remains: the request is exhausted.
		r.Status = model.HelpDeclinedAll
		return m.store.UpdateHelpRequest(ctx, r)
	}

	attempt := &model.GiverAttempt{RequestID: r.ID, GiverID: candidate.UserID, Status: model.AttemptPending, SentAt: now}
	if err := m.store.CreateAttempt(ctx, attempt); err != nil {
		return err
	}
	r.Attempts++
	if err := m.store.UpdateHelpRequest(ctx, r); err != nil {
		return err
	}
	if err := m.sink.Emit(ctx, candidate.UserID, "request_offered", map[string]any{"requestId": r.ID}); err != nil {
		logging.Get(logging.CategoryPromptMatch).Warn("emit request_offered to %s: %v", candidate.UserID, err)
	}
	return nil
}

// nextCandidate orders available givers by similarity desc, rating desc,
// helps-given desc, and returns the first not already excluded by the
// decline-set, block relations, or a pending attempt elsewhere.
func (m *Matcher) nextCandidate(ctx context.Context, r *model.HelpRequest) (*model.GiverProfile, error) {
	exclude := make(map[string]struct{}, len(r.DeclinedGivers)+1)
	for g := range r.DeclinedGivers {
		exclude[g] = struct{}{}
	}
	exclude[r.ReceiverID] = struct{}{}

	givers, err := m.store.AvailableGivers(ctx, exclude, 64)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		g   *model.GiverProfile
		sim float64
	}
	var candidates []ranked
	for _, g := range givers {
		blocked, err := m.store.IsBlockedEitherWay(ctx, r.ReceiverID, g.UserID)
		if err != nil {
			return nil, err
		}
		if blocked {
			continue
		}
		elsewhere, err := m.store.GiverHasPendingAttemptElsewhere(ctx, g.UserID, r.ID)
		if err != nil {
			return nil, err
		}
		if elsewhere {
			continue
		}
		candidates = append(candidates, ranked{g: g, sim: scorer.CosineSimilarity(r.Embedding, g.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		if candidates[i].g.AvgRating != candidates[j].g.AvgRating {
			return candidates[i].g.AvgRating > candidates[j].g.AvgRating
		}
		return candidates[i].g.HelpsGiven > candidates[j].g.HelpsGiven
	})
	if len(candidates) == 0 {
		return nil, nil
	}
	return candidates[0].g, nil
}
