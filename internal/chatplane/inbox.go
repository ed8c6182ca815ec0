package chatplane

import (
	"context"
	"time"

	"github.com/orincore/circle-core/internal/model"
)

// InboxEntry is one row of getUserInbox: a chat plus everything a chat list
// view needs to render without a further round trip.
type InboxEntry struct {
	ChatID            string
	OtherUser         *model.Profile
	LastMessage       *model.Message
	LastMessageStatus string // "sent" | "delivered" | "read", empty if no message
	UnreadCount       int
}

// Inbox computes getUserInbox(userId): every chat the user belongs to, each
// chat's last non-tombstoned message after the user's deletion cutoff (the
// chat is hidden entirely if a cutoff exists and nothing is newer), and the
// unread count after that same cutoff.
func (h *chatHandler) Inbox(ctx context.Context, userID string) ([]InboxEntry, error) {
	chats, err := h.store.UserChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []InboxEntry
	for _, chat := range chats {
		entry, hidden, err := h.inboxEntryFor(ctx, chat, userID)
		if err != nil {
			return nil, err
		}
		if hidden {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (h *chatHandler) inboxEntryFor(ctx context.Context, chat *model.Chat, userID string) (InboxEntry, bool, error) {
	members, err := h.store.ChatMembers(ctx, chat.ID)
	if err != nil {
		return InboxEntry{}, false, err
	}
	cutoff, err := h.store.GetChatDeletion(ctx, chat.ID, userID)
	if err != nil {
		return InboxEntry{}, false, err
	}
	after := time.Time{}
	if cutoff != nil {
		after = *cutoff
	}

	last, hasMessage, err := h.store.LastVisibleMessage(ctx, chat.ID, after)
	if err != nil {
		return InboxEntry{}, false, err
	}
	if cutoff != nil && !hasMessage {
		return InboxEntry{}, true, nil
	}

	unread, err := h.store.UnreadCount(ctx, chat.ID, userID, after)
	if err != nil {
		return InboxEntry{}, false, err
	}
	other, err := h.store.GetProfile(ctx, otherMember(members, userID))
	if err != nil {
		return InboxEntry{}, false, err
	}

	entry := InboxEntry{ChatID: chat.ID, OtherUser: other, UnreadCount: unread}
	if hasMessage {
		entry.LastMessage = last
		receipts, err := h.store.ReceiptsForMessage(ctx, last.ID)
		if err != nil {
			return InboxEntry{}, false, err
		}
		entry.LastMessageStatus = reduceReceiptStatus(last, receipts)
	}
	return entry, false, nil
}

// reduceReceiptStatus derives the sender-visible status of a message by
// reducing every non-sender receipt: read supersedes delivered supersedes
// the default of sent.
func reduceReceiptStatus(msg *model.Message, receipts []*model.Receipt) string {
	status := "sent"
	for _, r := range receipts {
		if r.UserID == msg.SenderID {
			continue
		}
		switch r.Status {
		case model.ReceiptRead:
			return "read"
		case model.ReceiptDelivered:
			status = "delivered"
		}
	}
	return status
}
