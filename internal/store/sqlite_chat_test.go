package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orincore/circle-core/internal/model"
)

func TestSQLiteStore_GetOrCreateChat_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, err := s.GetOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	c2, err := s.GetOrCreateChat(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID, "the same pair must resolve to the same chat regardless of argument order")

	members, err := s.ChatMembers(ctx, c1.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, members)
}

func TestSQLiteStore_MessageEditDeleteAreSenderOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat, err := s.GetOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)

	m := &model.Message{ID: uuid.NewString(), ChatID: chat.ID, SenderID: "u1", Text: "hey", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertMessage(ctx, m))

	err = s.EditMessage(ctx, m.ID, "u2", "hijack", time.Now().UTC())
	assert.Error(t, err, "a non-sender must not be able to edit the message")

	require.NoError(t, s.EditMessage(ctx, m.ID, "u1", "hey there", time.Now().UTC()))
	got, err := s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "hey there", got.Text)
	assert.True(t, got.IsEdited)

	err = s.DeleteMessage(ctx, m.ID, "u2", time.Now().UTC())
	assert.Error(t, err, "a non-sender must not be able to delete the message")

	require.NoError(t, s.DeleteMessage(ctx, m.ID, "u1", time.Now().UTC()))
	got, err = s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, "This message was deleted", got.DisplayText())
}

func TestSQLiteStore_ChatHistoryOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat, err := s.GetOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)

	base := time.Now().UTC()
	for i, text := range []string{"one", "two", "three"} {
		m := &model.Message{ID: uuid.NewString(), ChatID: chat.ID, SenderID: "u1", Text: text,
			CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.InsertMessage(ctx, m))
	}

	history, err := s.ChatHistory(ctx, chat.ID, base.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{history[0].Text, history[1].Text, history[2].Text})
}

func TestSQLiteStore_UnreadCountExcludesOwnMessagesAndReadReceipts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat, err := s.GetOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)

	base := time.Now().UTC()
	m1 := &model.Message{ID: uuid.NewString(), ChatID: chat.ID, SenderID: "u1", Text: "a", CreatedAt: base}
	m2 := &model.Message{ID: uuid.NewString(), ChatID: chat.ID, SenderID: "u1", Text: "b", CreatedAt: base.Add(time.Second)}
	own := &model.Message{ID: uuid.NewString(), ChatID: chat.ID, SenderID: "u2", Text: "c", CreatedAt: base.Add(2 * time.Second)}
	require.NoError(t, s.InsertMessage(ctx, m1))
	require.NoError(t, s.InsertMessage(ctx, m2))
	require.NoError(t, s.InsertMessage(ctx, own))

	count, err := s.UnreadCount(ctx, chat.ID, "u2", base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count, "u2's own message must not count toward its own unread total")

	require.NoError(t, s.UpsertReceipt(ctx, &model.Receipt{MessageID: m1.ID, UserID: "u2", Status: model.ReceiptRead, At: time.Now().UTC()}))

	count, err = s.UnreadCount(ctx, chat.ID, "u2", base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_ToggleReactionIsAnInvolution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat, err := s.GetOrCreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	m := &model.Message{ID: uuid.NewString(), ChatID: chat.ID, SenderID: "u1", Text: "hi", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertMessage(ctx, m))

	added, err := s.ToggleReaction(ctx, m.ID, "u2", "❤️")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.ToggleReaction(ctx, m.ID, "u2", "❤️")
	require.NoError(t, err)
	assert.False(t, added, "toggling twice removes the reaction")
}

func TestSQLiteStore_MuteLazilyExpires(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.SetMute(ctx, "u1", "chat1", true, &past))

	m, err := s.GetMute(ctx, "u1", "chat1")
	require.NoError(t, err)
	assert.False(t, m.Muted, "an elapsed mute must read back as not-muted")

	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.SetMute(ctx, "u1", "chat1", true, &future))
	m, err = s.GetMute(ctx, "u1", "chat1")
	require.NoError(t, err)
	assert.True(t, m.Muted)
}
