// Package chatplane implements the Chat Plane: the socket gateway that is
// the only mutator of chat state from clients.
//
// handlers.go holds the store-mutating half of the contract, split out of
// the socket/connection plumbing in gateway.go so the message/edit/delete/
// receipt/reaction/mute logic can be exercised against a real store without
// a live connection, the same separation of concerns internal/worker draws
// between a Tick's business logic and its Runner's lease/ticker loop.
package chatplane

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orincore/circle-core/internal/apperr"
	"github.com/orincore/circle-core/internal/blinddate"
	"github.com/orincore/circle-core/internal/logging"
	"github.com/orincore/circle-core/internal/model"
	"github.com/orincore/circle-core/internal/notify"
	"github.com/orincore/circle-core/internal/store"
)

// Notifier hands a candidate notification to the Notification Gate. Satisfied
// directly by *notify.Gate.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) error
}

// chatHandler is the store-backed half of the Chat Plane: everything that
// does not require mutating gateway-local room/presence state.
type chatHandler struct {
	store     store.Store
	notifier  Notifier
	blindDate *blinddate.Session // nil if blind-date gating is not wired
}

// historyLimit is the number of messages returned on join, per the contract.
const historyLimit = 30

// Join verifies membership and returns the last historyLimit
// non-tombstoned messages after the caller's chat-deletion cutoff, if any.
func (h *chatHandler) Join(ctx context.Context, userID, chatID string) ([]*model.Message, error) {
	if err := h.verifyMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	after, err := h.cutoffFor(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	return h.store.ChatHistory(ctx, chatID, after, historyLimit)
}

func (h *chatHandler) cutoffFor(ctx context.Context, chatID, userID string) (time.Time, error) {
	cutoff, err := h.store.GetChatDeletion(ctx, chatID, userID)
	if err != nil {
		return time.Time{}, err
	}
	if cutoff == nil {
		return time.Time{}, nil
	}
	return *cutoff, nil
}

func (h *chatHandler) verifyMember(ctx context.Context, chatID, userID string) error {
	members, err := h.store.ChatMembers(ctx, chatID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m == userID {
			return nil
		}
	}
	return apperr.New(apperr.Forbidden, "not a member of this chat")
}

func otherMember(members []string, userID string) string {
	for _, m := range members {
		if m != userID {
			return m
		}
	}
	return ""
}

// Message persists a chat message, rejecting it if either side has blocked
// the other or, for an unrevealed blind-date chat, if it fails the PII
// filter.
func (h *chatHandler) Message(ctx context.Context, senderID, chatID, text string) ([]outboundEvent, error) {
	members, err := h.verifyMemberAndGet(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}
	recipient := otherMember(members, senderID)

	blocked, err := h.store.IsBlockedEitherWay(ctx, senderID, recipient)
	if err != nil {
		return nil, err
	}
	if blocked {
		return []outboundEvent{toCaller(outboundFrame{Type: "message_blocked", Payload: map[string]any{"reason": "blocked"}})}, nil
	}

	if h.blindDate != nil {
		match, err := h.store.BlindDateMatchByChatID(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if match != nil && match.Status == model.BlindDateActive {
			result, err := h.blindDate.CheckMessage(ctx, match.ID, text)
			if err != nil {
				return nil, err
			}
			if !result.Allowed {
				return []outboundEvent{toCaller(outboundFrame{Type: "message_blocked", Payload: map[string]any{
					"reason": result.BlockedReason, "detected": result.DetectedTypes,
				}})}, nil
			}
		}
	}

	now := time.Now().UTC()
	msg := &model.Message{ID: uuid.NewString(), ChatID: chatID, SenderID: senderID, Text: text, CreatedAt: now, UpdatedAt: now}
	if err := h.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := h.store.TouchLastMessageAt(ctx, chatID, now); err != nil {
		return nil, err
	}

	events := []outboundEvent{toRoom(chatID, outboundFrame{Type: "message", Payload: msg})}

	senderProfile, err := h.store.GetProfile(ctx, senderID)
	if err != nil {
		logging.Get(logging.CategoryChatPlane).Warn("sender lookup failed for %s: %v", senderID, err)
	}
	events = append(events, toUser(recipient, outboundFrame{Type: "message_background", Payload: map[string]any{
		"message": msg, "senderName": notify.DisplayName(senderProfile),
	}}))

	if h.notifier != nil {
		if err := h.notifier.Notify(ctx, notify.Event{
			Kind: notify.KindMessage, SenderID: senderID, RecipientID: recipient, ChatID: chatID,
			Payload: map[string]any{"messageId": msg.ID, "text": msg.Text},
		}); err != nil {
			logging.Get(logging.CategoryChatPlane).Warn("notify message failed: %v", err)
		}
	}
	return events, nil
}

func (h *chatHandler) verifyMemberAndGet(ctx context.Context, chatID, userID string) ([]string, error) {
	members, err := h.store.ChatMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m == userID {
			return members, nil
		}
	}
	return nil, apperr.New(apperr.Forbidden, "not a member of this chat")
}

// Edit enforces sender-only ownership.
func (h *chatHandler) Edit(ctx context.Context, userID, messageID, text string) ([]outboundEvent, error) {
	msg, err := h.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.SenderID != userID {
		return nil, apperr.New(apperr.Forbidden, "not the sender of this message")
	}
	now := time.Now().UTC()
	if err := h.store.EditMessage(ctx, messageID, userID, text, now); err != nil {
		return nil, err
	}
	return []outboundEvent{toRoom(msg.ChatID, outboundFrame{Type: "message_edited", Payload: map[string]any{
		"messageId": messageID, "text": text, "updatedAt": now,
	}})}, nil
}

// Delete soft-tombstones, sender-only.
func (h *chatHandler) Delete(ctx context.Context, userID, messageID string) ([]outboundEvent, error) {
	msg, err := h.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.SenderID != userID {
		return nil, apperr.New(apperr.Forbidden, "not the sender of this message")
	}
	now := time.Now().UTC()
	if err := h.store.DeleteMessage(ctx, messageID, userID, now); err != nil {
		return nil, err
	}
	return []outboundEvent{toRoom(msg.ChatID, outboundFrame{Type: "message_deleted", Payload: map[string]any{
		"messageId": messageID,
	}})}, nil
}

// Delivered upserts a delivered receipt. Receipts are never recorded for
// the sender against their own message.
func (h *chatHandler) Delivered(ctx context.Context, userID, chatID, messageID string) ([]outboundEvent, error) {
	if err := h.verifyMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if err := h.rejectOwnMessage(ctx, userID, messageID); err != nil {
		return nil, err
	}
	if err := h.store.UpsertReceipt(ctx, &model.Receipt{MessageID: messageID, UserID: userID, Status: model.ReceiptDelivered, At: time.Now().UTC()}); err != nil {
		return nil, err
	}
	return []outboundEvent{toRoom(chatID, outboundFrame{Type: "delivered", Payload: map[string]any{"by": userID, "messageId": messageID}})}, nil
}

// rejectOwnMessage enforces that a user never records a receipt against a
// message they sent.
func (h *chatHandler) rejectOwnMessage(ctx context.Context, userID, messageID string) error {
	msg, err := h.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg != nil && msg.SenderID == userID {
		return apperr.New(apperr.Conflict, "cannot record a receipt against your own message")
	}
	return nil
}

// Read upserts a read receipt and, implicitly, a delivered one, then fans
// out both to the room (display) and directly to members (unread-counter
// updates for members not currently viewing the room). Receipts are never
// recorded for the sender against their own message.
func (h *chatHandler) Read(ctx context.Context, userID, chatID, messageID string) ([]outboundEvent, error) {
	members, err := h.verifyMemberAndGet(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if err := h.rejectOwnMessage(ctx, userID, messageID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := h.store.UpsertReceipt(ctx, &model.Receipt{MessageID: messageID, UserID: userID, Status: model.ReceiptDelivered, At: now}); err != nil {
		return nil, err
	}
	if err := h.store.UpsertReceipt(ctx, &model.Receipt{MessageID: messageID, UserID: userID, Status: model.ReceiptRead, At: now}); err != nil {
		return nil, err
	}
	frame := outboundFrame{Type: "read", Payload: map[string]any{"by": userID, "messageId": messageID}}
	events := []outboundEvent{toRoom(chatID, frame)}
	for _, m := range members {
		events = append(events, toUser(m, frame))
	}
	return events, nil
}

// ReactionToggle adds or removes a reaction, never duplicating, and
// separately notifies members with sender enrichment when a reaction is
// added (for off-room notification views).
func (h *chatHandler) ReactionToggle(ctx context.Context, userID, chatID, messageID, emoji string) ([]outboundEvent, error) {
	members, err := h.verifyMemberAndGet(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	added, err := h.store.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, err
	}
	kind := "reaction_removed"
	if added {
		kind = "reaction_added"
	}
	payload := map[string]any{"messageId": messageID, "userId": userID, "emoji": emoji}
	events := []outboundEvent{toRoom(chatID, outboundFrame{Type: kind, Payload: payload})}

	if added {
		profile, err := h.store.GetProfile(ctx, userID)
		if err != nil {
			logging.Get(logging.CategoryChatPlane).Warn("reactor lookup failed for %s: %v", userID, err)
		}
		senderName := notify.DisplayName(profile)
		for _, m := range members {
			if m == userID {
				continue
			}
			events = append(events, toUser(m, outboundFrame{Type: "reaction_added", Payload: map[string]any{
				"messageId": messageID, "emoji": emoji, "senderName": senderName,
			}}))
			if h.notifier != nil {
				if err := h.notifier.Notify(ctx, notify.Event{
					Kind: notify.KindReaction, SenderID: userID, RecipientID: m, ChatID: chatID, Payload: payload,
				}); err != nil {
					logging.Get(logging.CategoryChatPlane).Warn("notify reaction failed: %v", err)
				}
			}
		}
	}
	return events, nil
}

// MuteSet upserts the caller's mute setting for the chat.
func (h *chatHandler) MuteSet(ctx context.Context, userID, chatID string, muted bool, until *time.Time) ([]outboundEvent, error) {
	if err := h.verifyMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if err := h.store.SetMute(ctx, userID, chatID, muted, until); err != nil {
		return nil, err
	}
	return []outboundEvent{toCaller(outboundFrame{Type: "ack", Payload: map[string]any{"type": "mute_set"}})}, nil
}
