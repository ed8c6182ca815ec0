package matchmaking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orincore/circle-core/internal/coordinator"
	"github.com/orincore/circle-core/internal/model"
	"github.com/orincore/circle-core/internal/store"
)

type recordingSink struct {
	events   map[string][]string // userID -> kinds
	payloads map[string][]map[string]any
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(map[string][]string), payloads: make(map[string][]map[string]any)}
}

func (s *recordingSink) Emit(ctx context.Context, userID, kind string, payload map[string]any) error {
	s.events[userID] = append(s.events[userID], kind)
	s.payloads[userID] = append(s.payloads[userID], payload)
	return nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProfile(t *testing.T, s *store.SQLiteStore, id string, interests []string) {
	t.Helper()
	set := make(map[string]struct{}, len(interests))
	for _, i := range interests {
		set[i] = struct{}{}
	}
	require.NoError(t, s.UpsertProfile(context.Background(), &model.Profile{
		ID: id, DisplayName: id, Age: 28, Interests: set,
	}))
}

func testConfig() Config {
	return Config{
		HeartbeatInterval: time.Second,
		LeaseTTL:          time.Second,
		TicketTTL:         time.Hour,
		ProposalWindow:    30 * time.Second,
		ClaimTTL:          10 * time.Second,
	}
}

func TestEngine_Tick_ProposesCompatiblePair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfile(t, s, "u1", []string{"music", "travel"})
	seedProfile(t, s, "u2", []string{"travel", "books"})

	e := NewEngine(s, coordinator.NewMemory(), newRecordingSink(), testConfig())
	_, err := e.Enqueue(ctx, "u1", model.MatchmakingCriteria{})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = e.Enqueue(ctx, "u2", model.MatchmakingCriteria{})
	require.NoError(t, err)

	require.NoError(t, e.Tick(ctx, "holder-1"))

	p1, err := e.OnProposal(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p1)
	p2, err := e.OnProposal(ctx, "u2")
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.Equal(t, p1.ID, p2.ID)
}

func TestEngine_Tick_ProposalPayloadNamesTheOtherUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfile(t, s, "u1", []string{"music", "travel"})
	seedProfile(t, s, "u2", []string{"travel", "books"})
	sink := newRecordingSink()

	e := NewEngine(s, coordinator.NewMemory(), sink, testConfig())
	_, err := e.Enqueue(ctx, "u1", model.MatchmakingCriteria{})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = e.Enqueue(ctx, "u2", model.MatchmakingCriteria{})
	require.NoError(t, err)

	require.NoError(t, e.Tick(ctx, "holder-1"))

	require.Len(t, sink.payloads["u1"], 1)
	require.Len(t, sink.payloads["u2"], 1)
	assert.Equal(t, "u2", sink.payloads["u1"][0]["otherUserId"])
	assert.Equal(t, "u1", sink.payloads["u2"][0]["otherUserId"])
}

func TestEngine_MutualAccept_CreatesFriendshipAndChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfile(t, s, "u1", []string{"music"})
	seedProfile(t, s, "u2", []string{"music"})
	sink := newRecordingSink()
	e := NewEngine(s, coordinator.NewMemory(), sink, testConfig())
	_, _ = e.Enqueue(ctx, "u1", model.MatchmakingCriteria{})
	_, _ = e.Enqueue(ctx, "u2", model.MatchmakingCriteria{})
	require.NoError(t, e.Tick(ctx, "holder-1"))

	p, err := e.OnProposal(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NoError(t, e.AcceptProposal(ctx, "u1", p.ID))
	// only one side accepted: no friendship yet, both tickets still live
	_, stillLive, err := s.GetTicket(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, stillLive)

	require.NoError(t, e.AcceptProposal(ctx, "u2", p.ID))

	f, err := s.GetFriendship(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, model.FriendshipAccepted, f.Status)

	_, ticketLeft, err := s.GetTicket(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ticketLeft)

	assert.Contains(t, sink.events["u1"], "matched")
	assert.Contains(t, sink.events["u2"], "matched")

	// accepting again is a no-op, not an error
	require.NoError(t, e.AcceptProposal(ctx, "u1", p.ID))
}

func TestEngine_Cancel_RequeuesOtherSideOfOpenProposal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfile(t, s, "u1", []string{"music"})
	seedProfile(t, s, "u2", []string{"music"})
	sink := newRecordingSink()
	e := NewEngine(s, coordinator.NewMemory(), sink, testConfig())
	_, _ = e.Enqueue(ctx, "u1", model.MatchmakingCriteria{})
	_, _ = e.Enqueue(ctx, "u2", model.MatchmakingCriteria{})
	require.NoError(t, e.Tick(ctx, "holder-1"))

	require.NoError(t, e.Cancel(ctx, "u1"))

	_, u1HasTicket, err := s.GetTicket(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u1HasTicket)

	_, u2HasTicket, err := s.GetTicket(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, u2HasTicket)

	assert.Contains(t, sink.events["u2"], "proposal_cancelled")
}

func TestEngine_Tick_BlockedPairNeverProposed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfile(t, s, "u1", []string{"music"})
	seedProfile(t, s, "u2", []string{"music"})
	require.NoError(t, s.CreateBlock(ctx, "u1", "u2"))

	e := NewEngine(s, coordinator.NewMemory(), newRecordingSink(), testConfig())
	_, _ = e.Enqueue(ctx, "u1", model.MatchmakingCriteria{})
	_, _ = e.Enqueue(ctx, "u2", model.MatchmakingCriteria{})
	require.NoError(t, e.Tick(ctx, "holder-1"))

	p, err := e.OnProposal(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestEngine_ExpireProposals_RequeuesBothSides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProfile(t, s, "u1", []string{"music"})
	seedProfile(t, s, "u2", []string{"music"})
	cfg := testConfig()
	cfg.ProposalWindow = time.Millisecond
	sink := newRecordingSink()
	e := NewEngine(s, coordinator.NewMemory(), sink, cfg)
	_, _ = e.Enqueue(ctx, "u1", model.MatchmakingCriteria{})
	_, _ = e.Enqueue(ctx, "u2", model.MatchmakingCriteria{})
	require.NoError(t, e.Tick(ctx, "holder-1"))
	first, err := e.OnProposal(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, first)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, e.Tick(ctx, "holder-1"))

	assert.Contains(t, sink.events["u1"], "proposal_expired")
	assert.Contains(t, sink.events["u2"], "proposal_expired")

	// the only two compatible tickets are immediately re-paired into a
	// fresh proposal by the same pass that expired the old one.
	second, err := e.OnProposal(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	_, u1HasTicket, err := s.GetTicket(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u1HasTicket)
}
