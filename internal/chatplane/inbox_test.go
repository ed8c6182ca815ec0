package chatplane

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orincore/circle-core/internal/model"
)

func TestChatHandler_Inbox_ReportsUnreadAndLastMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", ChatID: chat.ID, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}))

	h := newHandler(s, nil)
	inbox, err := h.Inbox(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, chat.ID, inbox[0].ChatID)
	assert.Equal(t, "u1", inbox[0].OtherUser.ID)
	assert.Equal(t, 1, inbox[0].UnreadCount)
	assert.Equal(t, "sent", inbox[0].LastMessageStatus)
}

func TestChatHandler_Inbox_StatusReflectsReadReceipt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", ChatID: chat.ID, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.UpsertReceipt(ctx, &model.Receipt{MessageID: "m1", UserID: "u2", Status: model.ReceiptRead, At: time.Now().UTC()}))

	h := newHandler(s, nil)
	inbox, err := h.Inbox(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "read", inbox[0].LastMessageStatus)
	assert.Equal(t, 0, inbox[0].UnreadCount)
}

func TestChatHandler_Inbox_HidesChatClearedWithNoNewerMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", ChatID: chat.ID, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.SetChatDeletion(ctx, chat.ID, "u2", time.Now().UTC().Add(time.Hour)))

	h := newHandler(s, nil)
	inbox, err := h.Inbox(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestChatHandler_Inbox_IncludesEmptyChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")

	h := newHandler(s, nil)
	inbox, err := h.Inbox(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, chat.ID, inbox[0].ChatID)
	assert.Nil(t, inbox[0].LastMessage)
	assert.Empty(t, inbox[0].LastMessageStatus)
}
