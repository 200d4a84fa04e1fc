package store

import (
	"context"
	"encoding/json"

	"github.com/wayfarelabs/wayfare/internal/models"
)

// DataStore defines the interface for persistent storage of users,
// conversations, messages and travel logs. Both PostgresStore and
// SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	UpsertUser(ctx context.Context, user models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, excludeID string) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Conversation operations
	CreateConversation(ctx context.Context, participants []string, now int64) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	FindConversationByPair(ctx context.Context, a, b string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	UpdateConversationOnSend(ctx context.Context, id string, last models.Message) error
	ResetUnread(ctx context.Context, id string) error
	CountConversations(ctx context.Context) (int64, error)

	// Message operations
	InsertMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	ListUnreadMessages(ctx context.Context, conversationID, excludeSender string) ([]models.Message, error)
	MarkMessageRead(ctx context.Context, messageID string) error
	CountMessages(ctx context.Context) (int64, error)

	// Travel log operations
	InsertTravelLog(ctx context.Context, log *models.TravelLog) error
	ListTravelLogs(ctx context.Context, userID string) ([]models.TravelLog, error)
	SearchTravelLogs(ctx context.Context, userID, query string, limit int) ([]models.TravelLog, error)
	CountTravelLogs(ctx context.Context) (int64, error)
}

// encodeLastMessage serializes the denormalized last-message copy stored on
// a conversation row. Nil encodes as NULL.
func encodeLastMessage(msg *models.Message) (*string, error) {
	if msg == nil {
		return nil, nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

// decodeLastMessage is the inverse of encodeLastMessage.
func decodeLastMessage(raw *string) (*models.Message, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var msg models.Message
	if err := json.Unmarshal([]byte(*raw), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
