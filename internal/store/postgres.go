package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayfarelabs/wayfare/internal/crypto"
	"github.com/wayfarelabs/wayfare/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT DEFAULT '',
		email TEXT DEFAULT '',
		photo_url TEXT DEFAULT '',
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		pair_key TEXT UNIQUE NOT NULL,
		user_a TEXT NOT NULL,
		user_b TEXT NOT NULL,
		last_message TEXT,
		unread_count INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender_id TEXT NOT NULL,
		text TEXT NOT NULL,
		ts BIGINT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS travel_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		image_url TEXT DEFAULT '',
		location TEXT DEFAULT '',
		date_time BIGINT NOT NULL,
		details TEXT DEFAULT '',
		created_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_user_a ON conversations(user_a);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_b ON conversations(user_b);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, ts);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, read);
	CREATE INDEX IF NOT EXISTS idx_travel_logs_user ON travel_logs(user_id, date_time);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertUser creates or overwrites a user record, keyed by the identity
// provider's id.
func (s *PostgresStore) UpsertUser(ctx context.Context, user models.User) (*models.User, error) {
	out := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, photo_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email,
		    photo_url = EXCLUDED.photo_url, updated_at = NOW()
		RETURNING id, name, email, photo_url, created_at, updated_at
	`, user.ID, user.Name, user.Email, user.PhotoURL).Scan(
		&out.ID,
		&out.Name,
		&out.Email,
		&out.PhotoURL,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetUserByID retrieves a user by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, photo_url, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PhotoURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// ListUsers retrieves all users except excludeID.
func (s *PostgresStore) ListUsers(ctx context.Context, excludeID string) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, photo_url, created_at, updated_at
		FROM users WHERE id <> $1
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
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// CreateConversation creates a conversation for an unordered participant
// pair. Creation is idempotent: if a conversation for the pair already
// exists, the existing one is returned.
func (s *PostgresStore) CreateConversation(ctx context.Context, participants []string, now int64) (*models.Conversation, error) {
	if len(participants) != 2 {
		return nil, errors.New("conversation requires exactly 2 participants")
	}
	a, b := participants[0], participants[1]
	pairKey := models.PairKey(a, b)
	id := crypto.NewConversationID()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, pair_key, user_a, user_b, unread_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (pair_key) DO NOTHING
	`, id, pairKey, a, b, now)
	if err != nil {
		return nil, err
	}

	return s.FindConversationByPair(ctx, a, b)
}

const conversationColumns = `id, user_a, user_b, last_message, unread_count, created_at, updated_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
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
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// FindConversationByPair retrieves the conversation for an unordered pair
// of user ids, or nil if none exists.
func (s *PostgresStore) FindConversationByPair(ctx context.Context, a, b string) (*models.Conversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE pair_key = $1`, models.PairKey(a, b)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// ListConversations retrieves all conversations containing userID, newest
// activity first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_a = $1 OR user_b = $1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// UpdateConversationOnSend denormalizes the latest message onto the parent
// conversation and bumps the unread count. The increment applies to the
// conversation as a whole regardless of who sent the message.
func (s *PostgresStore) UpdateConversationOnSend(ctx context.Context, id string, last models.Message) error {
	lastRaw, err := encodeLastMessage(&last)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE conversations
		SET last_message = $2, updated_at = $3, unread_count = unread_count + 1
		WHERE id = $1
	`, id, lastRaw, last.Timestamp)
	return err
}

// ResetUnread sets the conversation's unread count back to zero.
func (s *PostgresStore) ResetUnread(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations SET unread_count = 0 WHERE id = $1
	`, id)
	return err
}

// CountConversations returns the total number of conversations.
func (s *PostgresStore) CountConversations(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

// InsertMessage stores a new message. The caller assigns id and timestamp.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, text, ts, read)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Text, msg.Timestamp, msg.Read)
	return err
}

// ListMessages retrieves all messages in a conversation, oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, text, ts, read
		FROM messages WHERE conversation_id = $1
		ORDER BY ts ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ListUnreadMessages retrieves unread messages in a conversation that were
// not sent by excludeSender.
func (s *PostgresStore) ListUnreadMessages(ctx context.Context, conversationID, excludeSender string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, text, ts, read
		FROM messages
		WHERE conversation_id = $1 AND sender_id <> $2 AND read = FALSE
		ORDER BY ts ASC
	`, conversationID, excludeSender)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
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

// MarkMessageRead flags a single message as read.
func (s *PostgresStore) MarkMessageRead(ctx context.Context, messageID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE messages SET read = TRUE WHERE id = $1`, messageID)
	return err
}

// CountMessages returns the total number of messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// InsertTravelLog stores a new travel log entry.
func (s *PostgresStore) InsertTravelLog(ctx context.Context, log *models.TravelLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO travel_logs (id, user_id, image_url, location, date_time, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, log.ID, log.UserID, log.ImageURL, log.Location, log.DateTime, log.Details, log.CreatedAt)
	return err
}

// ListTravelLogs retrieves a user's travel logs, most recent trip first.
func (s *PostgresStore) ListTravelLogs(ctx context.Context, userID string) ([]models.TravelLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, image_url, location, date_time, details, created_at
		FROM travel_logs WHERE user_id = $1
		ORDER BY date_time DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTravelLogs(rows)
}

// SearchTravelLogs retrieves a user's travel logs whose location or details
// match the query, most recent trip first.
func (s *PostgresStore) SearchTravelLogs(ctx context.Context, userID, query string, limit int) ([]models.TravelLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, image_url, location, date_time, details, created_at
		FROM travel_logs
		WHERE user_id = $1 AND (location ILIKE '%' || $2 || '%' OR details ILIKE '%' || $2 || '%')
		ORDER BY date_time DESC
		LIMIT $3
	`, userID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTravelLogs(rows)
}

func collectTravelLogs(rows pgx.Rows) ([]models.TravelLog, error) {
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

// CountTravelLogs returns the total number of travel logs.
func (s *PostgresStore) CountTravelLogs(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM travel_logs`).Scan(&n)
	return n, err
}
