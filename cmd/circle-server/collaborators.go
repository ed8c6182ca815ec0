package main

import (
	"context"

	"github.com/orincore/circle-core/internal/logging"
	"github.com/orincore/circle-core/internal/notify"
)

// logPusher is the boundary stand-in for notify.Pusher: circle-server has no
// APNs/FCM/e-mail provider wired, so a push candidate that clears the
// Notification Gate's eligibility chain is logged and dropped rather than
// silently swallowed. A real deployment replaces this with an actual
// provider client; nothing else in notify.Gate needs to change.
type logPusher struct{}

func (logPusher) Push(ctx context.Context, recipientID string, ev notify.Event) error {
	logging.Get(logging.CategoryNotify).Info("push %s -> %s from %s", ev.Kind, recipientID, ev.SenderName)
	return nil
}

// logReminder is the boundary stand-in for blinddate.Reminder, for the same
// reason: no push/e-mail provider is wired, so an idle-pair nudge is logged.
type logReminder struct{}

func (logReminder) SendReminder(ctx context.Context, userA, userB, matchID string) error {
	logging.Get(logging.CategoryBlindDate).Info("reminder %s: nudge %s and %s", matchID, userA, userB)
	return nil
}
