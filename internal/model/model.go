// Package model holds the core entities shared across the matchmaking,
// prompt-matching, blind-date, and chat-plane subsystems.
package model

import "time"

// LocationPreference controls how far a matchmaking ticket is willing to
// search for a partner.
type LocationPreference string

const (
	LocationNearby  LocationPreference = "nearby"
	LocationCity    LocationPreference = "city"
	LocationCountry LocationPreference = "country"
	LocationAnywhere LocationPreference = "anywhere"
)

// AgePreference controls how strictly a ticket's age band is enforced.
type AgePreference string

const (
	AgeStrict   AgePreference = "strict"
	AgeFlexible AgePreference = "flexible"
)

// Coordinates is an optional lat/lon pin with a freshness timestamp.
type Coordinates struct {
	Lat       float64
	Lon       float64
	UpdatedAt time.Time
}

// Preferences bundles the discovery knobs carried on a Profile.
type Preferences struct {
	Location                  LocationPreference
	Age                       AgePreference
	FriendshipLocationPriority bool
	RelationshipDistanceFlex  bool
}

// Profile is the identity record backing every other entity.
type Profile struct {
	ID          string
	DisplayName string
	FirstName   string
	LastName    string
	Age         int
	Gender      string
	Coords      *Coordinates
	Interests   map[string]struct{}
	Needs       map[string]struct{}
	About       string
	Prefs       Preferences
	Invisible   bool
	Suspended   bool
	DeletedAt   *time.Time
}

// Eligible reports whether the profile may appear in discovery or matching
// results at all (suspended or tombstoned profiles are excluded).
func (p *Profile) Eligible() bool {
	return p != nil && !p.Suspended && p.DeletedAt == nil
}

// FriendshipStatus is the lifecycle state of a Friendship row.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipBlocked  FriendshipStatus = "blocked"
	FriendshipInactive FriendshipStatus = "inactive"
)

// Friendship is stored canonicalized: User1 < User2 lexicographically.
type Friendship struct {
	User1     string
	User2     string
	Sender    string
	Status    FriendshipStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanonicalPair returns (lo, hi) such that lo < hi, so friendships and
// blind-date matches store a single row per unordered pair.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// Chat is a 1:1 conversation.
type Chat struct {
	ID            string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// ChatMember is one of the (exactly two, for 1:1) participants in a Chat.
type ChatMember struct {
	ChatID string
	UserID string
}

// Message belongs to a Chat.
type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Text      string
	CreatedAt time.Time
	UpdatedAt time.Time
	IsEdited  bool
	IsDeleted bool
}

// DisplayText returns the tombstone placeholder for deleted messages.
func (m *Message) DisplayText() string {
	if m.IsDeleted {
		return "This message was deleted"
	}
	return m.Text
}

// ReceiptStatus is delivered or read.
type ReceiptStatus string

const (
	ReceiptDelivered ReceiptStatus = "delivered"
	ReceiptRead      ReceiptStatus = "read"
)

// Receipt records that a user reached a given status for a message.
type Receipt struct {
	MessageID string
	UserID    string
	Status    ReceiptStatus
	At        time.Time
}

// Reaction is a (message, user, emoji) triple.
type Reaction struct {
	MessageID string
	UserID    string
	Emoji     string
}

// ChatDeletion is a per-user logical clear of a chat's history.
type ChatDeletion struct {
	ChatID    string
	UserID    string
	DeletedAt time.Time
}

// MuteSetting is a per-(user, chat) notification suppression flag.
type MuteSetting struct {
	UserID     string
	ChatID     string
	Muted      bool
	MutedUntil *time.Time
}

// Active reports whether the mute is currently in effect, lazily treating an
// elapsed MutedUntil as not-muted (boundary case: MutedUntil == now is
// not-muted).
func (m MuteSetting) Active(now time.Time) bool {
	if !m.Muted {
		return false
	}
	if m.MutedUntil == nil {
		return true
	}
	return now.Before(*m.MutedUntil)
}

// Block is a one-directional block; either direction existing blocks both.
type Block struct {
	BlockerID string
	BlockedID string
}

// MatchmakingCriteria is the search criteria attached to a ticket.
type MatchmakingCriteria struct {
	GenderPreference string
	AgeMin           int
	AgeMax           int
	Interests        map[string]struct{}
	LocationHint     string
}

// MatchmakingTicket is a user's live entry in the matchmaking queue.
type MatchmakingTicket struct {
	ID        string
	UserID    string
	Criteria  MatchmakingCriteria
	QueuedAt  time.Time
	HeartbeatAt time.Time
	ClaimedBy string
}

// MatchProposalStatus is the lifecycle state of a MatchProposal.
type MatchProposalStatus string

const (
	ProposalOpen             MatchProposalStatus = "open"
	ProposalMutuallyAccepted MatchProposalStatus = "mutually_accepted"
	ProposalExpired          MatchProposalStatus = "expired"
	ProposalRejected         MatchProposalStatus = "rejected"
)

// MatchProposal is a candidate pairing awaiting both sides' acceptance.
type MatchProposal struct {
	ID         string
	UserA      string
	UserB      string
	AAccepted  bool
	BAccepted  bool
	Status     MatchProposalStatus
	CreatedAt  time.Time
	ChatID     string
}

// OtherUser returns the counterpart of userID in the proposal.
func (p *MatchProposal) OtherUser(userID string) string {
	if userID == p.UserA {
		return p.UserB
	}
	return p.UserA
}

// Accepted reports whether the given user's side has accepted.
func (p *MatchProposal) Accepted(userID string) bool {
	if userID == p.UserA {
		return p.AAccepted
	}
	return p.BAccepted
}

// Accept flips the given user's acceptance flag and reports whether both
// sides are now accepted.
func (p *MatchProposal) Accept(userID string) bool {
	if userID == p.UserA {
		p.AAccepted = true
	} else if userID == p.UserB {
		p.BAccepted = true
	}
	return p.AAccepted && p.BAccepted
}

// GiverProfile is a user's availability record for the prompt matcher.
type GiverProfile struct {
	UserID      string
	Skills      map[string]struct{}
	Categories  map[string]struct{}
	Embedding   []float32
	HelpsGiven  int
	AvgRating   float64
	Available   bool
}

// HelpRequestStatus is the lifecycle state of a HelpRequest.
type HelpRequestStatus string

const (
	HelpSearching    HelpRequestStatus = "searching"
	HelpMatched      HelpRequestStatus = "matched"
	HelpDeclinedAll  HelpRequestStatus = "declined_all"
	HelpCompleted    HelpRequestStatus = "completed"
	HelpCancelled    HelpRequestStatus = "cancelled"
	HelpExpired      HelpRequestStatus = "expired"
)

// HelpRequest is a receiver's published prompt.
type HelpRequest struct {
	ID            string
	ReceiverID    string
	Prompt        string
	Embedding     []float32
	Status        HelpRequestStatus
	Attempts      int
	DeclinedGivers map[string]struct{}
	MatchedGiver  string
	ChatID        string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// GiverAttemptStatus is the lifecycle state of one offer to one giver.
type GiverAttemptStatus string

const (
	AttemptPending  GiverAttemptStatus = "pending"
	AttemptAccepted GiverAttemptStatus = "accepted"
	AttemptDeclined GiverAttemptStatus = "declined"
	AttemptExpired  GiverAttemptStatus = "expired"
)

// GiverAttempt is a single offer of a HelpRequest to one giver.
type GiverAttempt struct {
	RequestID   string
	GiverID     string
	Status      GiverAttemptStatus
	SentAt      time.Time
	RespondedAt *time.Time
}

// BlindDateStatus is the lifecycle state of a BlindDateMatch.
type BlindDateStatus string

const (
	BlindDateActive   BlindDateStatus = "active"
	BlindDateRevealed BlindDateStatus = "revealed"
	BlindDateEnded    BlindDateStatus = "ended"
)

// BlindDateMatch is a stateful anonymous-chat pairing.
type BlindDateMatch struct {
	ID              string
	UserA           string
	UserB           string
	Status          BlindDateStatus
	MessageCount    int
	RevealThreshold int
	UserARevealed   bool
	UserBRevealed   bool
	MatchedAt       time.Time
	ChatID          string
	ReminderSentAt  *time.Time
}

// RevealAvailable reports whether either side may now request a reveal
// (message_count >= reveal_threshold, boundary-inclusive).
func (b *BlindDateMatch) RevealAvailable() bool {
	return b.MessageCount >= b.RevealThreshold
}

// OtherUser returns the counterpart of userID in the match.
func (b *BlindDateMatch) OtherUser(userID string) string {
	if userID == b.UserA {
		return b.UserB
	}
	return b.UserA
}
