package chatplane

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orincore/circle-core/internal/model"
	"github.com/orincore/circle-core/internal/notify"
	"github.com/orincore/circle-core/internal/store"
)

type recordingNotifier struct {
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, ev notify.Event) error {
	n.events = append(n.events, ev)
	return nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedChat(t *testing.T, s *store.SQLiteStore, userA, userB string) *model.Chat {
	t.Helper()
	require.NoError(t, s.UpsertProfile(context.Background(), &model.Profile{ID: userA, DisplayName: userA}))
	require.NoError(t, s.UpsertProfile(context.Background(), &model.Profile{ID: userB, DisplayName: userB}))
	chat, err := s.CreateChat(context.Background(), userA, userB)
	require.NoError(t, err)
	return chat
}

func newHandler(s store.Store, n Notifier) *chatHandler {
	return &chatHandler{store: s, notifier: n}
}

func TestChatHandler_Join_RejectsNonMember(t *testing.T) {
	s := newTestStore(t)
	chat := seedChat(t, s, "u1", "u2")
	h := newHandler(s, nil)

	_, err := h.Join(context.Background(), "u3", chat.ID)
	assert.Error(t, err)
}

func TestChatHandler_Join_ReturnsHistoryAfterCutoff(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")

	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", ChatID: chat.ID, SenderID: "u1", Text: "old", CreatedAt: time.Now().UTC().Add(-time.Hour)}))
	require.NoError(t, s.SetChatDeletion(ctx, chat.ID, "u2", time.Now().UTC().Add(-30*time.Minute)))
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m2", ChatID: chat.ID, SenderID: "u1", Text: "new", CreatedAt: time.Now().UTC()}))

	h := newHandler(s, nil)
	history, err := h.Join(ctx, "u2", chat.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "m2", history[0].ID)
}

func TestChatHandler_Message_RejectsBlockedPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	require.NoError(t, s.CreateBlock(ctx, "u2", "u1"))

	h := newHandler(s, nil)
	events, err := h.Message(ctx, "u1", chat.ID, "hi")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, targetCaller, events[0].Target)
	assert.Equal(t, "message_blocked", events[0].Frame.Type)

	msgs, err := s.ChatHistory(ctx, chat.ID, time.Time{}, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestChatHandler_Message_PersistsAndFansOut(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	notifier := &recordingNotifier{}
	h := newHandler(s, notifier)

	events, err := h.Message(ctx, "u1", chat.ID, "hello")
	require.NoError(t, err)

	var sawRoom, sawBackground bool
	for _, ev := range events {
		if ev.Target == targetRoom && ev.Frame.Type == "message" {
			sawRoom = true
		}
		if ev.Target == targetUser && ev.UserID == "u2" && ev.Frame.Type == "message_background" {
			sawBackground = true
		}
	}
	assert.True(t, sawRoom)
	assert.True(t, sawBackground)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, notify.KindMessage, notifier.events[0].Kind)
}

func TestChatHandler_Edit_RejectsNonSender(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", ChatID: chat.ID, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}))

	h := newHandler(s, nil)
	_, err := h.Edit(ctx, "u2", "m1", "edited")
	assert.Error(t, err)
}

func TestChatHandler_Edit_UpdatesText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", ChatID: chat.ID, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}))

	h := newHandler(s, nil)
	events, err := h.Edit(ctx, "u1", "m1", "edited")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "message_edited", events[0].Frame.Type)

	msg, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "edited", msg.Text)
	assert.True(t, msg.IsEdited)
}

func TestChatHandler_Delete_TombstonesMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", ChatID: chat.ID, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}))

	h := newHandler(s, nil)
	_, err := h.Delete(ctx, "u1", "m1")
	require.NoError(t, err)

	msg, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, msg.IsDeleted)
	assert.Equal(t, "This message was deleted", msg.DisplayText())
}

func TestChatHandler_Read_ImplicitlyDelivers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", ChatID: chat.ID, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}))

	h := newHandler(s, nil)
	events, err := h.Read(ctx, "u2", chat.ID, "m1")
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	receipts, err := s.ReceiptsForMessage(ctx, "m1")
	require.NoError(t, err)
	statuses := map[model.ReceiptStatus]bool{}
	for _, r := range receipts {
		statuses[r.Status] = true
	}
	assert.True(t, statuses[model.ReceiptDelivered])
	assert.True(t, statuses[model.ReceiptRead])
}

func TestChatHandler_Delivered_RejectsSenderOwnMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", ChatID: chat.ID, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}))

	h := newHandler(s, nil)
	_, err := h.Delivered(ctx, "u1", chat.ID, "m1")
	assert.Error(t, err)

	receipts, err := s.ReceiptsForMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, receipts)
}

func TestChatHandler_Read_RejectsSenderOwnMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", ChatID: chat.ID, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}))

	h := newHandler(s, nil)
	_, err := h.Read(ctx, "u1", chat.ID, "m1")
	assert.Error(t, err)

	receipts, err := s.ReceiptsForMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, receipts)
}

func TestChatHandler_ReactionToggle_IsInvolution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", ChatID: chat.ID, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}))

	h := newHandler(s, nil)
	events, err := h.ReactionToggle(ctx, "u2", chat.ID, "m1", "👍")
	require.NoError(t, err)
	assert.Equal(t, "reaction_added", events[0].Frame.Type)

	events, err = h.ReactionToggle(ctx, "u2", chat.ID, "m1", "👍")
	require.NoError(t, err)
	assert.Equal(t, "reaction_removed", events[0].Frame.Type)
}

func TestChatHandler_MuteSet_UpsertsAndAcks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := seedChat(t, s, "u1", "u2")
	h := newHandler(s, nil)

	events, err := h.MuteSet(ctx, "u1", chat.ID, true, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, targetCaller, events[0].Target)
	assert.Equal(t, "ack", events[0].Frame.Type)

	mute, err := s.GetMute(ctx, "u1", chat.ID)
	require.NoError(t, err)
	assert.True(t, mute.Muted)
}
