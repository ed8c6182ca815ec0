// Package store implements the relational Store collaborator: CRUD on
// every core entity, a nearest-neighbor query over giver embeddings, and a
// geographic radius query over profiles.
//
// Grounded on theRebelliousNerd-codenerd/internal/store/local_core.go (a
// single *sql.DB guarded by a mutex, WAL-mode SQLite, directory creation on
// open) and internal/store/migrations.go (a versioned schema-migration
// runner). The production driver is mattn/go-sqlite3, exactly as the
// teacher uses it; the entity schema itself is entirely new — the teacher's
// tables hold Datalog facts and knowledge-graph edges, ours hold profiles,
// chats, and tickets.
package store

import (
	"context"
	"time"

	"github.com/orincore/circle-core/internal/model"
)

// Store is the full collaborator surface every subsystem depends on.
type Store interface {
	ProfileStore
	FriendshipStore
	BlockStore
	ChatStore
	MatchmakingStore
	PromptMatchStore
	BlindDateStore

	Close() error
}

// ProfileStore covers profile CRUD and the geo-radius discovery query.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpsertProfile(ctx context.Context, p *model.Profile) error
	ProfilesByIDs(ctx context.Context, ids []string) (map[string]*model.Profile, error)
	// ProfilesNear returns eligible profiles within radiusKm of (lat, lon),
	// via a bounding-box prefilter and client-side Haversine refinement
	// (permits either a native geospatial index or this).
	ProfilesNear(ctx context.Context, lat, lon, radiusKm float64, excluding map[string]struct{}) ([]*model.Profile, error)
}

// FriendshipStore covers the canonicalized friendship rows.
type FriendshipStore interface {
	GetFriendship(ctx context.Context, userA, userB string) (*model.Friendship, error)
	UpsertFriendship(ctx context.Context, f *model.Friendship) error
}

// BlockStore covers one-directional blocks.
type BlockStore interface {
	IsBlockedEitherWay(ctx context.Context, a, b string) (bool, error)
	CreateBlock(ctx context.Context, blocker, blocked string) error
}

// ChatStore covers chats, members, messages, receipts, reactions, chat
// deletions, and mute settings — the Chat Plane's persistence surface.
type ChatStore interface {
	CreateChat(ctx context.Context, userA, userB string) (*model.Chat, error)
	GetOrCreateChat(ctx context.Context, userA, userB string) (*model.Chat, error)
	GetChat(ctx context.Context, chatID string) (*model.Chat, error)
	ChatMembers(ctx context.Context, chatID string) ([]string, error)
	UserChats(ctx context.Context, userID string) ([]*model.Chat, error)
	TouchLastMessageAt(ctx context.Context, chatID string, at time.Time) error

	InsertMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
	EditMessage(ctx context.Context, messageID, senderID, text string, at time.Time) error
	DeleteMessage(ctx context.Context, messageID, senderID string, at time.Time) error
	ChatHistory(ctx context.Context, chatID string, after time.Time, limit int) ([]*model.Message, error)
	LastVisibleMessage(ctx context.Context, chatID string, after time.Time) (*model.Message, bool, error)

	UpsertReceipt(ctx context.Context, r *model.Receipt) error
	ReceiptsForMessage(ctx context.Context, messageID string) ([]*model.Receipt, error)
	UnreadCount(ctx context.Context, chatID, userID string, after time.Time) (int, error)

	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (added bool, err error)

	SetChatDeletion(ctx context.Context, chatID, userID string, at time.Time) error
	GetChatDeletion(ctx context.Context, chatID, userID string) (*time.Time, error)

	SetMute(ctx context.Context, userID, chatID string, muted bool, until *time.Time) error
	GetMute(ctx context.Context, userID, chatID string) (model.MuteSetting, error)
}

// MatchmakingStore covers tickets and proposals.
type MatchmakingStore interface {
	UpsertTicket(ctx context.Context, t *model.MatchmakingTicket) error
	DeleteTicket(ctx context.Context, userID string) error
	GetTicket(ctx context.Context, userID string) (*model.MatchmakingTicket, bool, error)
	LiveTickets(ctx context.Context, staleCutoff time.Time) ([]*model.MatchmakingTicket, error)
	HeartbeatTicket(ctx context.Context, userID string, at time.Time) error

	CreateProposal(ctx context.Context, p *model.MatchProposal) error
	GetProposal(ctx context.Context, id string) (*model.MatchProposal, error)
	UpdateProposal(ctx context.Context, p *model.MatchProposal) error
	ProposalForUser(ctx context.Context, userID string) (*model.MatchProposal, bool, error)
	OpenProposalsOlderThan(ctx context.Context, cutoff time.Time) ([]*model.MatchProposal, error)
}

// PromptMatchStore covers giver profiles, help requests, and attempts.
type PromptMatchStore interface {
	UpsertGiverProfile(ctx context.Context, g *model.GiverProfile) error
	GetGiverProfile(ctx context.Context, userID string) (*model.GiverProfile, error)
	AvailableGivers(ctx context.Context, excluding map[string]struct{}, limit int) ([]*model.GiverProfile, error)

	CreateHelpRequest(ctx context.Context, r *model.HelpRequest) error
	GetHelpRequest(ctx context.Context, id string) (*model.HelpRequest, error)
	UpdateHelpRequest(ctx context.Context, r *model.HelpRequest) error
	SearchingRequests(ctx context.Context) ([]*model.HelpRequest, error)

	CreateAttempt(ctx context.Context, a *model.GiverAttempt) error
	UpdateAttempt(ctx context.Context, a *model.GiverAttempt) error
	PendingAttemptForRequest(ctx context.Context, requestID string) (*model.GiverAttempt, bool, error)
	AttemptsForRequest(ctx context.Context, requestID string) ([]*model.GiverAttempt, error)
	GiverHasPendingAttemptElsewhere(ctx context.Context, giverID, excludingRequestID string) (bool, error)
}

// BlindDateStore covers blind-date matches.
type BlindDateStore interface {
	CreateBlindDateMatch(ctx context.Context, m *model.BlindDateMatch) error
	GetBlindDateMatch(ctx context.Context, id string) (*model.BlindDateMatch, error)
	UpdateBlindDateMatch(ctx context.Context, m *model.BlindDateMatch) error
	ActiveIdleMatches(ctx context.Context, createdBefore time.Time) ([]*model.BlindDateMatch, error)
	BlindDateMatchByChatID(ctx context.Context, chatID string) (*model.BlindDateMatch, error)
}
