// Package notify implements the Notification Gate: a pure eligibility check
// plus sender-name enrichment in front of an external push collaborator.
//
// Grounded on theRebelliousNerd-codenerd/internal/transparency/event_bus.go's
// separation of "decide whether an event should be dispatched" from "hand it
// to a subscriber" — reapplied here without the batching/sequencing
// machinery that package needs for its UI audience, since this gate fans out
// to exactly one recipient per call. Pusher is named-only: push dispatch,
// e-mail templating, and every other outbound channel are out-of-scope
// external collaborators.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/orincore/circle-core/internal/logging"
	"github.com/orincore/circle-core/internal/model"
	"github.com/orincore/circle-core/internal/store"
)

// nowFunc is overridden in tests to make mute-expiry checks deterministic.
var nowFunc = time.Now

// Kind names the event being routed through the gate.
type Kind string

const (
	KindMessage       Kind = "message"
	KindReaction      Kind = "reaction"
	KindMatch         Kind = "match"
	KindFriendRequest Kind = "friend_request"
)

// Event is a candidate outbound notification.
type Event struct {
	Kind        Kind
	SenderID    string
	RecipientID string
	ChatID      string // empty for events with no associated chat (e.g. a match)
	Payload     map[string]any

	// SenderName is filled in by the gate before the push; callers should
	// not set it.
	SenderName string
}

// Pusher is the external push/e-mail collaborator. Never implemented here.
type Pusher interface {
	Push(ctx context.Context, recipientID string, ev Event) error
}

// Gate enforces the blocked/suspended/muted eligibility chain before
// handing an event to Pusher.
type Gate struct {
	store  store.Store
	pusher Pusher
}

// NewGate builds a Gate over the given Store and Pusher.
func NewGate(s store.Store, p Pusher) *Gate {
	return &Gate{store: s, pusher: p}
}

// Notify runs the eligibility chain and dispatches ev on success. Failures
// anywhere in the chain are non-fatal: they are logged and the notification
// is dropped without affecting message persistence, per the gate's design —
// callers should not treat a non-nil return as anything but a logging
// signal.
func (g *Gate) Notify(ctx context.Context, ev Event) error {
	blocked, err := g.store.IsBlockedEitherWay(ctx, ev.SenderID, ev.RecipientID)
	if err != nil {
		logging.Get(logging.CategoryNotify).Warn("block lookup failed for %s/%s: %v", ev.SenderID, ev.RecipientID, err)
		return err
	}
	if blocked {
		logging.Get(logging.CategoryNotify).Debug("dropped %s: %s blocks %s", ev.Kind, ev.RecipientID, ev.SenderID)
		return nil
	}

	recipient, err := g.store.GetProfile(ctx, ev.RecipientID)
	if err != nil {
		logging.Get(logging.CategoryNotify).Warn("recipient lookup failed for %s: %v", ev.RecipientID, err)
		return err
	}
	if !recipient.Eligible() {
		logging.Get(logging.CategoryNotify).Debug("dropped %s: recipient %s ineligible", ev.Kind, ev.RecipientID)
		return nil
	}

	if ev.ChatID != "" {
		mute, err := g.store.GetMute(ctx, ev.RecipientID, ev.ChatID)
		if err != nil {
			logging.Get(logging.CategoryNotify).Warn("mute lookup failed for %s/%s: %v", ev.RecipientID, ev.ChatID, err)
			return err
		}
		if mute.Active(nowFunc()) {
			logging.Get(logging.CategoryNotify).Debug("dropped %s: %s muted %s", ev.Kind, ev.RecipientID, ev.ChatID)
			return nil
		}
	}

	sender, err := g.store.GetProfile(ctx, ev.SenderID)
	if err != nil {
		logging.Get(logging.CategoryNotify).Warn("sender lookup failed for %s: %v", ev.SenderID, err)
	}
	ev.SenderName = DisplayName(sender)

	if err := g.pusher.Push(ctx, ev.RecipientID, ev); err != nil {
		logging.Get(logging.CategoryNotify).Warn("push failed for %s: %v", ev.RecipientID, err)
		return err
	}
	return nil
}

// DisplayName falls back from first/last name to display name to "Someone",
// per the enrichment rule: first+last, else a stored handle, else "Someone".
// Shared with the chat plane so in-room and off-band enrichment agree.
func DisplayName(p *model.Profile) string {
	if p == nil {
		return "Someone"
	}
	if name := strings.TrimSpace(p.FirstName + " " + p.LastName); name != "" {
		return name
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return "Someone"
}
