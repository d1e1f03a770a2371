package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements ChatStore using modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema tables.
func (s *SQLiteStore) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chats (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT 'Novo chat',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id    TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (chat_id) REFERENCES chats(id)
	);

	CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateChat creates a chat owned by userID.
func (s *SQLiteStore) CreateChat(ctx context.Context, userID, title string) (*Chat, error) {
	if title == "" {
		title = "Novo chat"
	}
	chat := &Chat{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, title, created_at) VALUES (?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Chats returns the user's chats, newest first.
func (s *SQLiteStore) Chats(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at FROM chats WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// SaveMessage persists one turn. A failed ownership check is a no-op.
func (s *SQLiteStore) SaveMessage(ctx context.Context, chatID, role, content, userID string) error {
	owns, err := s.ChatBelongsToUser(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !owns {
		return ErrNotOwner
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		chatID, role, content, time.Now().UTC(),
	)
	return err
}

// Messages returns the chat's messages oldest first. For non-owners the
// result is empty.
func (s *SQLiteStore) Messages(ctx context.Context, chatID, userID string, limit int) ([]Message, error) {
	owns, err := s.ChatBelongsToUser(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, nil
	}

	// Take the newest N, then flip to oldest-first.
	query := `SELECT id, chat_id, role, content, created_at FROM (
		SELECT id, chat_id, role, content, created_at FROM messages
		WHERE chat_id = ? ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpdateChatTitle renames a chat; ownership is enforced in the WHERE
// clause, so a non-owner update touches zero rows.
func (s *SQLiteStore) UpdateChatTitle(ctx context.Context, chatID, userID, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET title = ? WHERE id = ? AND user_id = ?`,
		title, chatID, userID,
	)
	return err
}

// DeleteChat removes a chat and its messages when owned by userID.
func (s *SQLiteStore) DeleteChat(ctx context.Context, chatID, userID string) error {
	owns, err := s.ChatBelongsToUser(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !owns {
		return ErrNotOwner
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ? AND user_id = ?`, chatID, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// ChatBelongsToUser reports whether userID owns chatID.
func (s *SQLiteStore) ChatBelongsToUser(ctx context.Context, chatID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chats WHERE id = ? AND user_id = ?`,
		chatID, userID,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MessageBelongsToUser reports whether userID owns the chat containing
// the message.
func (s *SQLiteStore) MessageBelongsToUser(ctx context.Context, messageID int64, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages m JOIN chats c ON m.chat_id = c.id
		 WHERE m.id = ? AND c.user_id = ?`,
		messageID, userID,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
