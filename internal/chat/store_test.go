package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wayfarelabs/wayfare/internal/models"
)

// memStore is an in-memory DataStore covering what the repositories
// exercise. User and travel-log operations are stubbed.
type memStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	nextConv      int
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
	}
}

func (m *memStore) Close() {}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func (m *memStore) CountUsers(ctx context.Context) (int64, error) { return 0, nil }

func (m *memStore) UpsertUser(ctx context.Context, user models.User) (*models.User, error) {
	return &user, nil
}

func (m *memStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return nil, nil
}

func (m *memStore) ListUsers(ctx context.Context, excludeID string) ([]models.User, error) {
	return nil, nil
}

func (m *memStore) CreateConversation(ctx context.Context, participants []string, now int64) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent on the pair, like the unique pair_key constraint.
	pair := models.PairKey(participants[0], participants[1])
	for _, conv := range m.conversations {
		if models.PairKey(conv.Participants[0], conv.Participants[1]) == pair {
			out := *conv
			return &out, nil
		}
	}

	m.nextConv++
	conv := &models.Conversation{
		ID:           fmt.Sprintf("conv-%d", m.nextConv),
		Participants: []string{participants[0], participants[1]},
		UnreadCount:  0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.conversations[conv.ID] = conv
	out := *conv
	return &out, nil
}

func (m *memStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, nil
	}
	out := *conv
	return &out, nil
}

func (m *memStore) FindConversationByPair(ctx context.Context, a, b string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair := models.PairKey(a, b)
	for _, conv := range m.conversations {
		if models.PairKey(conv.Participants[0], conv.Participants[1]) == pair {
			out := *conv
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Conversation
	for _, conv := range m.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

func (m *memStore) UpdateConversationOnSend(ctx context.Context, id string, last models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	msg := last
	conv.LastMessage = &msg
	conv.UpdatedAt = last.Timestamp
	conv.UnreadCount++
	return nil
}

func (m *memStore) ResetUnread(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.conversations[id]; ok {
		conv.UnreadCount = 0
	}
	return nil
}

func (m *memStore) CountConversations(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.conversations)), nil
}

func (m *memStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *msg
	m.messages[msg.ID] = &out
	return nil
}

func (m *memStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (m *memStore) ListUnreadMessages(ctx context.Context, conversationID, excludeSender string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && !msg.Read && msg.SenderID != excludeSender {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (m *memStore) MarkMessageRead(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.messages[messageID]; ok {
		msg.Read = true
	}
	return nil
}

func (m *memStore) CountMessages(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.messages)), nil
}

func (m *memStore) InsertTravelLog(ctx context.Context, log *models.TravelLog) error { return nil }

func (m *memStore) ListTravelLogs(ctx context.Context, userID string) ([]models.TravelLog, error) {
	return nil, nil
}

func (m *memStore) SearchTravelLogs(ctx context.Context, userID, query string, limit int) ([]models.TravelLog, error) {
	return nil, nil
}

func (m *memStore) CountTravelLogs(ctx context.Context) (int64, error) { return 0, nil }
