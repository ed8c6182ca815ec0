package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/orincore/circle-core/internal/model"
)

func (s *SQLiteStore) CreateChat(ctx context.Context, userA, userB string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	chat := &model.Chat{ID: uuid.NewString(), CreatedAt: now, LastMessageAt: now}

	if _, err := tx.ExecContext(ctx, `INSERT INTO chats(id, created_at, last_message_at) VALUES (?,?,?)`,
		chat.ID, chat.CreatedAt, chat.LastMessageAt); err != nil {
		return nil, err
	}
	// Both member rows are inserted in the same transaction so a chat never
	// exists with fewer than its two members (invariant).
	for _, u := range []string{userA, userB} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chat_members(chat_id, user_id) VALUES (?,?)`, chat.ID, u); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return chat, nil
}

// GetOrCreateChat returns the existing 1:1 chat for the pair if one exists,
// otherwise creates it. Idempotent across repeated matches between the
// same two users.
func (s *SQLiteStore) GetOrCreateChat(ctx context.Context, userA, userB string) (*model.Chat, error) {
	if chat, ok, err := s.chatForUsers(ctx, userA, userB); err != nil {
		return nil, err
	} else if ok {
		return chat, nil
	}
	return s.CreateChat(ctx, userA, userB)
}

func (s *SQLiteStore) chatForUsers(ctx context.Context, userA, userB string) (*model.Chat, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT c.id, c.created_at, c.last_message_at
		FROM chats c
		JOIN chat_members m1 ON m1.chat_id = c.id AND m1.user_id = ?
		JOIN chat_members m2 ON m2.chat_id = c.id AND m2.user_id = ?
		LIMIT 1`, userA, userB)
	var c model.Chat
	err := row.Scan(&c.ID, &c.CreatedAt, &c.LastMessageAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &c, true, nil
}

func (s *SQLiteStore) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, created_at, last_message_at FROM chats WHERE id=?`, chatID)
	var c model.Chat
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.LastMessageAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) ChatMembers(ctx context.Context, chatID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM chat_members WHERE chat_id=?`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		members = append(members, u)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) UserChats(ctx context.Context, userID string) ([]*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT c.id, c.created_at, c.last_message_at
		FROM chats c JOIN chat_members m ON m.chat_id = c.id WHERE m.user_id = ?
		ORDER BY c.last_message_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chats []*model.Chat
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.LastMessageAt); err != nil {
			return nil, err
		}
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}

// TouchLastMessageAt bumps last_message_at, enforcing the monotonic
// non-decreasing invariant.
func (s *SQLiteStore) TouchLastMessageAt(ctx context.Context, chatID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE chats SET last_message_at = ? WHERE id = ? AND last_message_at < ?`,
		at, chatID, at)
	return err
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO messages(id, chat_id, sender_id, text, created_at, updated_at, is_edited, is_deleted)
		VALUES (?,?,?,?,?,?,0,0)`, m.ID, m.ChatID, m.SenderID, m.Text, m.CreatedAt, m.CreatedAt)
	return err
}

func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, chat_id, sender_id, text, created_at, updated_at, is_edited, is_deleted
		FROM messages WHERE id=?`, messageID)
	m, err := scanMessageRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func scanMessageRow(row *sql.Row) (*model.Message, error) {
	var m model.Message
	var edited, deleted int
	if err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.CreatedAt, &m.UpdatedAt, &edited, &deleted); err != nil {
		return nil, err
	}
	m.IsEdited = edited == 1
	m.IsDeleted = deleted == 1
	return &m, nil
}

// EditMessage enforces sender-only ownership (forbidden).
func (s *SQLiteStore) EditMessage(ctx context.Context, messageID, senderID, text string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET text=?, is_edited=1, updated_at=?
		WHERE id=? AND sender_id=? AND is_deleted=0`, text, at, messageID, senderID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// DeleteMessage tombstones (never hard-deletes) a message, sender-only.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, messageID, senderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET is_deleted=1, updated_at=?
		WHERE id=? AND sender_id=?`, at, messageID, senderID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteStore) ChatHistory(ctx context.Context, chatID string, after time.Time, limit int) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, chat_id, sender_id, text, created_at, updated_at, is_edited, is_deleted
		FROM messages WHERE chat_id=? AND is_deleted=0 AND created_at > ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, chatID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var edited, deleted int
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.CreatedAt, &m.UpdatedAt, &edited, &deleted); err != nil {
			return nil, err
		}
		m.IsEdited = edited == 1
		m.IsDeleted = deleted == 1
		out = append(out, &m)
	}
	// reverse to ascending order for chat history display
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LastVisibleMessage(ctx context.Context, chatID string, after time.Time) (*model.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, chat_id, sender_id, text, created_at, updated_at, is_edited, is_deleted
		FROM messages WHERE chat_id=? AND is_deleted=0 AND created_at > ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, chatID, after)
	m, err := scanMessageRow(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// UpsertReceipt enforces "at most one row per (message, user, status)" via
// the primary key. The sender-never-receipts-own-message invariant is
// enforced upstream, by chatplane.chatHandler.Delivered/Read.
func (s *SQLiteStore) UpsertReceipt(ctx context.Context, r *model.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO receipts(message_id, user_id, status, at) VALUES (?,?,?,?)
		ON CONFLICT(message_id, user_id, status) DO UPDATE SET at=excluded.at`,
		r.MessageID, r.UserID, string(r.Status), r.At)
	return err
}

func (s *SQLiteStore) ReceiptsForMessage(ctx context.Context, messageID string) ([]*model.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT message_id, user_id, status, at FROM receipts WHERE message_id=?`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Receipt
	for rows.Next() {
		var r model.Receipt
		var status string
		if err := rows.Scan(&r.MessageID, &r.UserID, &status, &r.At); err != nil {
			return nil, err
		}
		r.Status = model.ReceiptStatus(status)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// UnreadCount counts messages from the other party after the user's clear
// cutoff that lack a read receipt from this user (inbox rule).
func (s *SQLiteStore) UnreadCount(ctx context.Context, chatID, userID string, after time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages m
		WHERE m.chat_id = ? AND m.sender_id != ? AND m.is_deleted = 0 AND m.created_at > ?
		AND NOT EXISTS (SELECT 1 FROM receipts r WHERE r.message_id = m.id AND r.user_id = ? AND r.status = 'read')`,
		chatID, userID, after, userID).Scan(&count)
	return count, err
}

// ToggleReaction is an involution: toggling twice with identical
// arguments leaves the reaction set unchanged.
func (s *SQLiteStore) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reactions WHERE message_id=? AND user_id=? AND emoji=?`,
		messageID, userID, emoji).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists > 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM reactions WHERE message_id=? AND user_id=? AND emoji=?`,
			messageID, userID, emoji)
		return false, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO reactions(message_id, user_id, emoji) VALUES (?,?,?)`,
		messageID, userID, emoji)
	return true, err
}

func (s *SQLiteStore) SetChatDeletion(ctx context.Context, chatID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO chat_deletions(chat_id, user_id, deleted_at) VALUES (?,?,?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET deleted_at=excluded.deleted_at`, chatID, userID, at)
	return err
}

func (s *SQLiteStore) GetChatDeletion(ctx context.Context, chatID, userID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT deleted_at FROM chat_deletions WHERE chat_id=? AND user_id=?`, chatID, userID)
	var t time.Time
	if err := row.Scan(&t); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) SetMute(ctx context.Context, userID, chatID string, muted bool, until *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var untilVal sql.NullTime
	if until != nil {
		untilVal = sql.NullTime{Time: *until, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO mute_settings(user_id, chat_id, is_muted, muted_until) VALUES (?,?,?,?)
		ON CONFLICT(user_id, chat_id) DO UPDATE SET is_muted=excluded.is_muted, muted_until=excluded.muted_until`,
		userID, chatID, boolInt(muted), untilVal)
	return err
}

// GetMute lazily resets an expired mute to "not muted" on read.
func (s *SQLiteStore) GetMute(ctx context.Context, userID, chatID string) (model.MuteSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, `SELECT is_muted, muted_until FROM mute_settings WHERE user_id=? AND chat_id=?`, userID, chatID)
	var isMuted int
	var until sql.NullTime
	err := row.Scan(&isMuted, &until)
	if err == sql.ErrNoRows {
		return model.MuteSetting{UserID: userID, ChatID: chatID}, nil
	}
	if err != nil {
		return model.MuteSetting{}, err
	}
	m := model.MuteSetting{UserID: userID, ChatID: chatID, Muted: isMuted == 1}
	if until.Valid {
		m.MutedUntil = &until.Time
	}
	if m.Muted && m.MutedUntil != nil && !time.Now().UTC().Before(*m.MutedUntil) {
		// Expired: lazily reset the row and report not-muted.
		if _, err := s.db.ExecContext(ctx, `UPDATE mute_settings SET is_muted=0, muted_until=NULL WHERE user_id=? AND chat_id=?`, userID, chatID); err != nil {
			return model.MuteSetting{}, err
		}
		return model.MuteSetting{UserID: userID, ChatID: chatID}, nil
	}
	return m, nil
}
