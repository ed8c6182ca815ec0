package promptmatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orincore/circle-core/internal/model"
	"github.com/orincore/circle-core/internal/scorer"
	"github.com/orincore/circle-core/internal/store"
)

type recordingSink struct {
	events map[string][]string
}

func newRecordingSink() *recordingSink { return &recordingSink{events: make(map[string][]string)} }

func (s *recordingSink) Emit(ctx context.Context, userID, kind string, payload map[string]any) error {
	s.events[userID] = append(s.events[userID], kind)
	return nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedGiver(t *testing.T, s *store.SQLiteStore, id, skillText string, rating float64, helps int) {
	t.Helper()
	require.NoError(t, s.UpsertGiverProfile(context.Background(), &model.GiverProfile{
		UserID: id, Embedding: scorer.Embed(skillText), AvgRating: rating, HelpsGiven: helps, Available: true,
	}))
}

func seedProfiles(t *testing.T, s *store.SQLiteStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.UpsertProfile(context.Background(), &model.Profile{ID: id, DisplayName: id}))
	}
}

func testConfig() Config {
	return Config{TickInterval: time.Second, ResponseWindow: 50 * time.Millisecond, RequestLifetime: time.Hour}
}

func TestMatcher_Tick_OffersTopRankedCandidateFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfiles(t, s, "receiver", "g1", "g2")
	seedGiver(t, s, "g1", "debug python code", 4.9, 10)
	seedGiver(t, s, "g2", "cook pasta", 4.9, 10)
	sink := newRecordingSink()
	m := NewMatcher(s, sink, testConfig())

	reqID, err := m.PublishRequest(ctx, "receiver", "help me debug python")
	require.NoError(t, err)

	require.NoError(t, m.Tick(ctx, "lease1"))

	pending, ok, err := s.PendingAttemptForRequest(ctx, reqID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "g1", pending.GiverID)
	assert.Contains(t, sink.events["g1"], "request_offered")
}

func TestMatcher_SerialSingleOffer_OnlyOnePendingAtATime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfiles(t, s, "receiver", "g1", "g2")
	seedGiver(t, s, "g1", "debug python code", 4.9, 10)
	seedGiver(t, s, "g2", "fix python bugs", 4.0, 5)
	m := NewMatcher(s, newRecordingSink(), testConfig())

	reqID, err := m.PublishRequest(ctx, "receiver", "help me debug python")
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx, "lease1"))

	// a second tick while the first attempt is still pending must not
	// create a second pending attempt.
	require.NoError(t, m.Tick(ctx, "lease1"))
	attempts, err := s.AttemptsForRequest(ctx, reqID)
	require.NoError(t, err)
	pendingCount := 0
	for _, a := range attempts {
		if a.Status == model.AttemptPending {
			pendingCount++
		}
	}
	assert.Equal(t, 1, pendingCount)
}

func TestMatcher_Decline_AdvancesToNextCandidate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfiles(t, s, "receiver", "g1", "g2")
	seedGiver(t, s, "g1", "debug python code", 4.9, 10)
	seedGiver(t, s, "g2", "debug python code", 4.0, 5)
	m := NewMatcher(s, newRecordingSink(), testConfig())

	reqID, err := m.PublishRequest(ctx, "receiver", "help me debug python")
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx, "lease1"))

	pending, ok, err := s.PendingAttemptForRequest(ctx, reqID)
	require.NoError(t, err)
	require.True(t, ok)
	firstGiver := pending.GiverID

	require.NoError(t, m.Respond(ctx, reqID, firstGiver, false))
	require.NoError(t, m.Tick(ctx, "lease1"))

	pending2, ok, err := s.PendingAttemptForRequest(ctx, reqID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, firstGiver, pending2.GiverID)
}

func TestMatcher_Accept_CreatesChatAndMatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfiles(t, s, "receiver", "g1")
	seedGiver(t, s, "g1", "debug python code", 4.9, 10)
	sink := newRecordingSink()
	m := NewMatcher(s, sink, testConfig())

	reqID, err := m.PublishRequest(ctx, "receiver", "help me debug python")
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx, "lease1"))

	require.NoError(t, m.Respond(ctx, reqID, "g1", true))

	r, err := s.GetHelpRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, model.HelpMatched, r.Status)
	assert.Equal(t, "g1", r.MatchedGiver)
	assert.NotEmpty(t, r.ChatID)
	assert.Contains(t, sink.events["receiver"], "matched")
	assert.Contains(t, sink.events["g1"], "matched")
}

func TestMatcher_AttemptExpiry_AdvancesAfterResponseWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfiles(t, s, "receiver", "g1", "g2")
	seedGiver(t, s, "g1", "debug python code", 4.9, 10)
	seedGiver(t, s, "g2", "debug python code", 4.0, 5)
	cfg := testConfig()
	cfg.ResponseWindow = time.Millisecond
	m := NewMatcher(s, newRecordingSink(), cfg)

	reqID, err := m.PublishRequest(ctx, "receiver", "help me debug python")
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx, "lease1"))
	first, _, err := s.PendingAttemptForRequest(ctx, reqID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, m.Tick(ctx, "lease1"))

	second, ok, err := s.PendingAttemptForRequest(ctx, reqID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, first.GiverID, second.GiverID)

	attempts, err := s.AttemptsForRequest(ctx, reqID)
	require.NoError(t, err)
	var expiredCount int
	for _, a := range attempts {
		if a.Status == model.AttemptExpired {
			expiredCount++
		}
	}
	assert.Equal(t, 1, expiredCount)
}

func TestMatcher_NoCandidates_DeclinedAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfiles(t, s, "receiver")
	m := NewMatcher(s, newRecordingSink(), testConfig())

	reqID, err := m.PublishRequest(ctx, "receiver", "help me debug python")
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx, "lease1"))

	r, err := s.GetHelpRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, model.HelpDeclinedAll, r.Status)
}

func TestMatcher_CancelRequest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfiles(t, s, "receiver")
	m := NewMatcher(s, newRecordingSink(), testConfig())

	reqID, err := m.PublishRequest(ctx, "receiver", "help me debug python")
	require.NoError(t, err)
	require.NoError(t, m.CancelRequest(ctx, reqID, "receiver"))

	r, err := s.GetHelpRequest(ctx, reqID)
	require.NoError(t, err)
	assert.Equal(t, model.HelpCancelled, r.Status)
}
