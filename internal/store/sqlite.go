package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wayfarelabs/wayfare/internal/crypto"
	"github.com/wayfarelabs/wayfare/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// fallback when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/wayfare.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/wayfare.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT DEFAULT '',
		email TEXT DEFAULT '',
		photo_url TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		pair_key TEXT UNIQUE NOT NULL,
		user_a TEXT NOT NULL,
		user_b TEXT NOT NULL,
		last_message TEXT,
		unread_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender_id TEXT NOT NULL,
		text TEXT NOT NULL,
		ts INTEGER NOT NULL,
		read INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS travel_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		image_url TEXT DEFAULT '',
		location TEXT DEFAULT '',
		date_time INTEGER NOT NULL,
		details TEXT DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_user_a ON conversations(user_a);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_b ON conversations(user_b);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, ts);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, read);
	CREATE INDEX IF NOT EXISTS idx_travel_logs_user ON travel_logs(user_id, date_time);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser creates or overwrites a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user models.User) (*models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, photo_url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, email = excluded.email,
		    photo_url = excluded.photo_url, updated_at = CURRENT_TIMESTAMP
	`, user.ID, user.Name, user.Email, user.PhotoURL)
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, user.ID)
}

// GetUserByID retrieves a user by id.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, photo_url, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PhotoURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// ListUsers retrieves all users except excludeID.
func (s *SQLiteStore) ListUsers(ctx context.Context, excludeID string) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, photo_url, created_at, updated_at
		FROM users WHERE id <> ?
		ORDER BY name
	`, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PhotoURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// CreateConversation creates a conversation for an unordered participant
// pair, returning the existing one if the pair already has a conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, participants []string, now int64) (*models.Conversation, error) {
	if len(participants) != 2 {
		return nil, errors.New("conversation requires exactly 2 participants")
	}
	a, b := participants[0], participants[1]
	id := crypto.NewConversationID()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, pair_key, user_a, user_b, unread_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, id, models.PairKey(a, b), a, b, now, now)
	if err != nil {
		return nil, err
	}

	return s.FindConversationByPair(ctx, a, b)
}

func (s *SQLiteStore) scanConversationRow(row *sql.Row) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var a, b string
	var lastRaw *string
	err := row.Scan(&conv.ID, &a, &b, &lastRaw, &conv.UnreadCount, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	conv.Participants = []string{a, b}
	conv.LastMessage, err = decodeLastMessage(lastRaw)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_a, user_b, last_message, unread_count, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)
	conv, err := s.scanConversationRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// FindConversationByPair retrieves the conversation for an unordered pair
// of user ids, or nil if none exists.
func (s *SQLiteStore) FindConversationByPair(ctx context.Context, a, b string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_a, user_b, last_message, unread_count, created_at, updated_at
		FROM conversations WHERE pair_key = ?
	`, models.PairKey(a, b))
	conv, err := s.scanConversationRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// ListConversations retrieves all conversations containing userID, newest
// activity first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_a, user_b, last_message, unread_count, created_at, updated_at
		FROM conversations
		WHERE user_a = ? OR user_b = ?
		ORDER BY updated_at DESC
	`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		conv := models.Conversation{}
		var a, b string
		var lastRaw *string
		if err := rows.Scan(&conv.ID, &a, &b, &lastRaw, &conv.UnreadCount, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		conv.Participants = []string{a, b}
		conv.LastMessage, err = decodeLastMessage(lastRaw)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// UpdateConversationOnSend denormalizes the latest message onto the parent
// conversation and bumps the unread count.
func (s *SQLiteStore) UpdateConversationOnSend(ctx context.Context, id string, last models.Message) error {
	lastRaw, err := encodeLastMessage(&last)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message = ?, updated_at = ?, unread_count = unread_count + 1
		WHERE id = ?
	`, lastRaw, last.Timestamp, id)
	return err
}

// ResetUnread sets the conversation's unread count back to zero.
func (s *SQLiteStore) ResetUnread(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET unread_count = 0 WHERE id = ?`, id)
	return err
}

// CountConversations returns the total number of conversations.
func (s *SQLiteStore) CountConversations(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

// InsertMessage stores a new message.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, text, ts, read)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Text, msg.Timestamp, msg.Read)
	return err
}

func collectMessageRows(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.Timestamp, &m.Read); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListMessages retrieves all messages in a conversation, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, text, ts, read
		FROM messages WHERE conversation_id = ?
		ORDER BY ts ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessageRows(rows)
}

// ListUnreadMessages retrieves unread messages not sent by excludeSender.
func (s *SQLiteStore) ListUnreadMessages(ctx context.Context, conversationID, excludeSender string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, text, ts, read
		FROM messages
		WHERE conversation_id = ? AND sender_id <> ? AND read = 0
		ORDER BY ts ASC
	`, conversationID, excludeSender)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessageRows(rows)
}

// MarkMessageRead flags a single message as read.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET read = 1 WHERE id = ?`, messageID)
	return err
}

// CountMessages returns the total number of messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// InsertTravelLog stores a new travel log entry.
func (s *SQLiteStore) InsertTravelLog(ctx context.Context, log *models.TravelLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO travel_logs (id, user_id, image_url, location, date_time, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.UserID, log.ImageURL, log.Location, log.DateTime, log.Details, log.CreatedAt)
	return err
}

func collectTravelLogRows(rows *sql.Rows) ([]models.TravelLog, error) {
	var logs []models.TravelLog
	for rows.Next() {
		var l models.TravelLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.ImageURL, &l.Location, &l.DateTime, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ListTravelLogs retrieves a user's travel logs, most recent trip first.
func (s *SQLiteStore) ListTravelLogs(ctx context.Context, userID string) ([]models.TravelLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, image_url, location, date_time, details, created_at
		FROM travel_logs WHERE user_id = ?
		ORDER BY date_time DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTravelLogRows(rows)
}

// SearchTravelLogs retrieves a user's travel logs matching the query.
func (s *SQLiteStore) SearchTravelLogs(ctx context.Context, userID, query string, limit int) ([]models.TravelLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, image_url, location, date_time, details, created_at
		FROM travel_logs
		WHERE user_id = ? AND (location LIKE '%' || ? || '%' OR details LIKE '%' || ? || '%')
		ORDER BY date_time DESC
		LIMIT ?
	`, userID, query, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTravelLogRows(rows)
}

// CountTravelLogs returns the total number of travel logs.
func (s *SQLiteStore) CountTravelLogs(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM travel_logs`).Scan(&n)
	return n, err
}
