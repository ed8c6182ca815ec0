package store

import (
	"database/sql"
	"fmt"

	"github.com/orincore/circle-core/internal/logging"
)

// CurrentSchemaVersion is bumped whenever a migration is appended. Grounded
// on theRebelliousNerd-codenerd/internal/store/migrations.go's versioned
// schema approach (a monotonically increasing schema_version tracked in the
// database itself, with one ordered list of DDL statements per version).
const CurrentSchemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL)`,

	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		first_name TEXT,
		last_name TEXT,
		age INTEGER,
		gender TEXT,
		lat REAL,
		lon REAL,
		coords_updated_at TIMESTAMP,
		interests TEXT,
		needs TEXT,
		about TEXT,
		location_pref TEXT,
		age_pref TEXT,
		friendship_location_priority INTEGER DEFAULT 0,
		relationship_distance_flex INTEGER DEFAULT 0,
		invisible INTEGER DEFAULT 0,
		suspended INTEGER DEFAULT 0,
		deleted_at TIMESTAMP)`,

	`CREATE TABLE IF NOT EXISTS friendships (
		user1 TEXT NOT NULL,
		user2 TEXT NOT NULL,
		sender TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user1, user2))`,

	`CREATE TABLE IF NOT EXISTS blocks (
		blocker_id TEXT NOT NULL,
		blocked_id TEXT NOT NULL,
		PRIMARY KEY (blocker_id, blocked_id))`,

	`CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		last_message_at TIMESTAMP NOT NULL)`,

	`CREATE TABLE IF NOT EXISTS chat_members (
		chat_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (chat_id, user_id))`,
	`CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		is_edited INTEGER DEFAULT 0,
		is_deleted INTEGER DEFAULT 0)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS receipts (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		at TIMESTAMP NOT NULL,
		PRIMARY KEY (message_id, user_id, status))`,

	`CREATE TABLE IF NOT EXISTS reactions (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		emoji TEXT NOT NULL,
		PRIMARY KEY (message_id, user_id, emoji))`,

	`CREATE TABLE IF NOT EXISTS chat_deletions (
		chat_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		deleted_at TIMESTAMP NOT NULL,
		PRIMARY KEY (chat_id, user_id))`,

	`CREATE TABLE IF NOT EXISTS mute_settings (
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		is_muted INTEGER NOT NULL,
		muted_until TIMESTAMP,
		PRIMARY KEY (user_id, chat_id))`,

	`CREATE TABLE IF NOT EXISTS matchmaking_tickets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		gender_pref TEXT,
		age_min INTEGER,
		age_max INTEGER,
		interests TEXT,
		location_hint TEXT,
		queued_at TIMESTAMP NOT NULL,
		heartbeat_at TIMESTAMP NOT NULL,
		claimed_by TEXT)`,

	`CREATE TABLE IF NOT EXISTS match_proposals (
		id TEXT PRIMARY KEY,
		user_a TEXT NOT NULL,
		user_b TEXT NOT NULL,
		a_accepted INTEGER DEFAULT 0,
		b_accepted INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		chat_id TEXT)`,
	`CREATE INDEX IF NOT EXISTS idx_proposals_user_a ON match_proposals(user_a, status)`,
	`CREATE INDEX IF NOT EXISTS idx_proposals_user_b ON match_proposals(user_b, status)`,

	`CREATE TABLE IF NOT EXISTS giver_profiles (
		user_id TEXT PRIMARY KEY,
		skills TEXT,
		categories TEXT,
		embedding BLOB,
		helps_given INTEGER DEFAULT 0,
		avg_rating REAL DEFAULT 0,
		available INTEGER DEFAULT 1)`,

	`CREATE TABLE IF NOT EXISTS help_requests (
		id TEXT PRIMARY KEY,
		receiver_id TEXT NOT NULL,
		prompt TEXT NOT NULL,
		embedding BLOB,
		status TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		declined_givers TEXT,
		matched_giver TEXT,
		chat_id TEXT,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL)`,
	`CREATE INDEX IF NOT EXISTS idx_help_requests_status ON help_requests(status)`,

	`CREATE TABLE IF NOT EXISTS giver_attempts (
		request_id TEXT NOT NULL,
		giver_id TEXT NOT NULL,
		status TEXT NOT NULL,
		sent_at TIMESTAMP NOT NULL,
		responded_at TIMESTAMP,
		PRIMARY KEY (request_id, giver_id))`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_status ON giver_attempts(status)`,

	`CREATE TABLE IF NOT EXISTS blind_date_matches (
		id TEXT PRIMARY KEY,
		user_a TEXT NOT NULL,
		user_b TEXT NOT NULL,
		status TEXT NOT NULL,
		message_count INTEGER DEFAULT 0,
		reveal_threshold INTEGER NOT NULL,
		user_a_revealed INTEGER DEFAULT 0,
		user_b_revealed INTEGER DEFAULT 0,
		matched_at TIMESTAMP NOT NULL,
		chat_id TEXT,
		reminder_sent_at TIMESTAMP)`,
}

// migrate runs every migration statement on each call and then records
// CurrentSchemaVersion. SQLite DDL is implicitly transactional per statement
// here (IF NOT EXISTS makes re-runs idempotent), matching the teacher's tolerance for re-applying migrations
// safely on every boot.
func (s *SQLiteStore) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return s.recordVersion(CurrentSchemaVersion)
}

func (s *SQLiteStore) recordVersion(v int) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_meta`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err := s.db.Exec(`INSERT INTO schema_meta(version) VALUES (?)`, v)
		return err
	}
	_, err := s.db.Exec(`UPDATE schema_meta SET version = ?`, v)
	return err
}

func scanErr(err error) error {
	if err == sql.ErrNoRows {
		return nil
	}
	return err
}
