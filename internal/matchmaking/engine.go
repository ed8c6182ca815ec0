// Package matchmaking implements the scored-pairing engine: a queue of
// tickets, a scored candidate search run under a Coordinator lease, and a
// MatchProposal lifecycle gated on mutual acceptance.
//
// Grounded on theRebelliousNerd-codenerd/internal/shards/matching.go's
// candidate-ranking-then-claim shape, reapplied over this domain's tickets
// and proposals instead of shard capability matching, and on
// internal/coordinator's soft-claim primitive for the per-ticket guard a
// concurrent pass needs.
package matchmaking

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/orincore/circle-core/internal/apperr"
	"github.com/orincore/circle-core/internal/coordinator"
	"github.com/orincore/circle-core/internal/events"
	"github.com/orincore/circle-core/internal/logging"
	"github.com/orincore/circle-core/internal/model"
	"github.com/orincore/circle-core/internal/store"
)

// Config tunes the engine's timing.
type Config struct {
	HeartbeatInterval time.Duration
	LeaseTTL          time.Duration
	TicketTTL         time.Duration
	ProposalWindow    time.Duration
	ClaimTTL          time.Duration
}

// Engine is the Matchmaking Engine contract plus its background pass.
type Engine struct {
	store store.Store
	coord coordinator.Coordinator
	sink  events.Sink
	cfg   Config
}

// NewEngine builds an Engine over the given collaborators.
func NewEngine(s store.Store, c coordinator.Coordinator, sink events.Sink, cfg Config) *Engine {
	return &Engine{store: s, coord: c, sink: sink, cfg: cfg}
}

// Name identifies this engine as a worker.Worker.
func (e *Engine) Name() string { return "matchmaking" }

// Enqueue creates or overwrites the caller's ticket.
func (e *Engine) Enqueue(ctx context.Context, userID string, criteria model.MatchmakingCriteria) (string, error) {
	now := time.Now().UTC()
	t := &model.MatchmakingTicket{
		ID:          uuid.NewString(),
		UserID:      userID,
		Criteria:    criteria,
		QueuedAt:    now,
		HeartbeatAt: now,
	}
	if err := e.store.UpsertTicket(ctx, t); err != nil {
		return "", err
	}
	return t.ID, nil
}

// Cancel removes the caller's ticket. If a proposal is outstanding, the
// other side is notified and re-queued at the back.
func (e *Engine) Cancel(ctx context.Context, userID string) error {
	if err := e.rejectOutstandingProposal(ctx, userID, "proposal_cancelled"); err != nil {
		return err
	}
	return e.store.DeleteTicket(ctx, userID)
}

// OnProposal returns the open proposal (if any) targeting userID, for
// reconnect polling.
func (e *Engine) OnProposal(ctx context.Context, userID string) (*model.MatchProposal, error) {
	p, ok, err := e.store.ProposalForUser(ctx, userID)
	if err != nil || !ok {
		return nil, err
	}
	return p, nil
}

// AcceptProposal flips userID's side; when both sides have accepted it
// creates the chat and friendship, removes both tickets, and emits
// `matched` to both sides. Accepting an already-accepted proposal is a
// no-op that reports success.
func (e *Engine) AcceptProposal(ctx context.Context, userID, proposalID string) error {
	p, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if p == nil || (p.UserA != userID && p.UserB != userID) {
		return apperr.New(apperr.Forbidden, "not a party to this proposal")
	}
	switch p.Status {
	case model.ProposalMutuallyAccepted:
		return nil
	case model.ProposalExpired, model.ProposalRejected:
		return apperr.New(apperr.Expired, "proposal no longer open")
	}

	bothAccepted := p.Accept(userID)
	if !bothAccepted {
		return e.store.UpdateProposal(ctx, p)
	}

	chat, err := e.store.GetOrCreateChat(ctx, p.UserA, p.UserB)
	if err != nil {
		return err
	}
	lo, hi := model.CanonicalPair(p.UserA, p.UserB)
	if err := e.store.UpsertFriendship(ctx, &model.Friendship{
		User1: lo, User2: hi, Sender: userID, Status: model.FriendshipAccepted,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	p.Status = model.ProposalMutuallyAccepted
	p.ChatID = chat.ID
	if err := e.store.UpdateProposal(ctx, p); err != nil {
		return err
	}
	if err := e.store.DeleteTicket(ctx, p.UserA); err != nil {
		logging.Get(logging.CategoryMatchmaking).Warn("delete ticket %s: %v", p.UserA, err)
	}
	if err := e.store.DeleteTicket(ctx, p.UserB); err != nil {
		logging.Get(logging.CategoryMatchmaking).Warn("delete ticket %s: %v", p.UserB, err)
	}
	e.emitBoth(ctx, p, "matched", map[string]any{"chatId": chat.ID})
	return nil
}

// RejectProposal marks the proposal rejected and re-queues both tickets.
func (e *Engine) RejectProposal(ctx context.Context, userID, proposalID string) error {
	p, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if p == nil || p.Status != model.ProposalOpen {
		return nil
	}
	if p.UserA != userID && p.UserB != userID {
		return apperr.New(apperr.Forbidden, "not a party to this proposal")
	}
	p.Status = model.ProposalRejected
	if err := e.store.UpdateProposal(ctx, p); err != nil {
		return err
	}
	e.requeue(ctx, p.UserA)
	e.requeue(ctx, p.UserB)
	e.emitBoth(ctx, p, "proposal_rejected", nil)
	return nil
}

func (e *Engine) rejectOutstandingProposal(ctx context.Context, userID, kind string) error {
	p, ok, err := e.store.ProposalForUser(ctx, userID)
	if err != nil || !ok {
		return err
	}
	p.Status = model.ProposalRejected
	if err := e.store.UpdateProposal(ctx, p); err != nil {
		return err
	}
	other := p.OtherUser(userID)
	e.requeue(ctx, other)
	if err := e.sink.Emit(ctx, other, kind, map[string]any{"proposalId": p.ID}); err != nil {
		logging.Get(logging.CategoryMatchmaking).Warn("emit %s to %s: %v", kind, other, err)
	}
	return nil
}

// requeue resets a still-live ticket's queued-at to the back of the line.
func (e *Engine) requeue(ctx context.Context, userID string) {
	t, ok, err := e.store.GetTicket(ctx, userID)
	if err != nil || !ok {
		return
	}
	t.QueuedAt = time.Now().UTC()
	if err := e.store.UpsertTicket(ctx, t); err != nil {
		logging.Get(logging.CategoryMatchmaking).Warn("requeue %s: %v", userID, err)
	}
}

func (e *Engine) emit(ctx context.Context, userID, kind string, payload map[string]any) {
	if err := e.sink.Emit(ctx, userID, kind, payload); err != nil {
		logging.Get(logging.CategoryMatchmaking).Warn("emit %s to %s: %v", kind, userID, err)
	}
}

func (e *Engine) emitBoth(ctx context.Context, p *model.MatchProposal, kind string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{"proposalId": p.ID}
	} else {
		payload["proposalId"] = p.ID
	}
	e.emit(ctx, p.UserA, kind, payload)
	e.emit(ctx, p.UserB, kind, payload)
}

// Tick runs one matchmaking pass: oldest-first fairness, soft-claimed
// pairing, and proposal-window expiry. lease is passed through as the
// holder id for this pass's soft-claims.
func (e *Engine) Tick(ctx context.Context, lease string) error {
	now := time.Now().UTC()

	if err := e.expireProposals(ctx, now); err != nil {
		return err
	}

	tickets, err := e.store.LiveTickets(ctx, now.Add(-e.cfg.TicketTTL))
	if err != nil {
		return err
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].QueuedAt.Before(tickets[j].QueuedAt) })

	paired := make(map[string]bool, len(tickets))
	profiles := make(map[string]*model.Profile, len(tickets))
	getProfile := func(userID string) (*model.Profile, error) {
		if p, ok := profiles[userID]; ok {
			return p, nil
		}
		p, err := e.store.GetProfile(ctx, userID)
		if err != nil {
			return nil, err
		}
		profiles[userID] = p
		return p, nil
	}

	horizon := e.cfg.TicketTTL.Seconds()

	for _, t := range tickets {
		if paired[t.UserID] {
			continue
		}
		if _, ok, err := e.store.ProposalForUser(ctx, t.UserID); err != nil {
			return err
		} else if ok {
			paired[t.UserID] = true
			continue
		}
		tProfile, err := getProfile(t.UserID)
		if err != nil {
			return err
		}
		if !tProfile.Eligible() {
			paired[t.UserID] = true
			continue
		}

		var best *model.MatchmakingTicket
		bestScore := -1.0
		for _, c := range tickets {
			if c.UserID == t.UserID || paired[c.UserID] {
				continue
			}
			cProfile, err := getProfile(c.UserID)
			if err != nil {
				return err
			}
			if !cProfile.Eligible() {
				continue
			}
			if !criteriaMatch(t.Criteria, cProfile) {
				continue
			}
			blocked, err := e.store.IsBlockedEitherWay(ctx, t.UserID, c.UserID)
			if err != nil {
				return err
			}
			if blocked {
				continue
			}
			s := score(t.Criteria, c.Criteria, tProfile, cProfile, tProfile.Prefs.Location,
				float64(c.QueuedAt.Unix()), float64(now.Unix()), horizon)
			if s > bestScore || (s == bestScore && best != nil && c.QueuedAt.Before(best.QueuedAt)) {
				best, bestScore = c, s
			}
		}
		if best == nil {
			continue
		}

		claimT := "claim/ticket/" + t.UserID
		claimC := "claim/ticket/" + best.UserID
		okT, err := e.coord.SoftClaim(ctx, claimT, lease, e.cfg.ClaimTTL)
		if err != nil {
			return err
		}
		if !okT {
			continue
		}
		okC, err := e.coord.SoftClaim(ctx, claimC, lease, e.cfg.ClaimTTL)
		if err != nil {
			return err
		}
		if !okC {
			_ = e.coord.ReleaseClaim(ctx, claimT, lease)
			continue
		}

		proposal := &model.MatchProposal{
			ID: uuid.NewString(), UserA: t.UserID, UserB: best.UserID,
			Status: model.ProposalOpen, CreatedAt: now,
		}
		if err := e.store.CreateProposal(ctx, proposal); err != nil {
			return err
		}
		paired[t.UserID] = true
		paired[best.UserID] = true
		_ = e.coord.ReleaseClaim(ctx, claimT, lease)
		_ = e.coord.ReleaseClaim(ctx, claimC, lease)
		e.emit(ctx, proposal.UserA, "proposal", map[string]any{"proposalId": proposal.ID, "otherUserId": proposal.UserB})
		e.emit(ctx, proposal.UserB, "proposal", map[string]any{"proposalId": proposal.ID, "otherUserId": proposal.UserA})
		logging.Get(logging.CategoryMatchmaking).Info("proposed %s <-> %s (score=%.3f)", t.UserID, best.UserID, bestScore)
	}
	return nil
}

func (e *Engine) expireProposals(ctx context.Context, now time.Time) error {
	stale, err := e.store.OpenProposalsOlderThan(ctx, now.Add(-e.cfg.ProposalWindow))
	if err != nil {
		return err
	}
	for _, p := range stale {
		p.Status = model.ProposalExpired
		if err := e.store.UpdateProposal(ctx, p); err != nil {
			return err
		}
		e.requeue(ctx, p.UserA)
		e.requeue(ctx, p.UserB)
		e.emitBoth(ctx, p, "proposal_expired", nil)
	}
	return nil
}
