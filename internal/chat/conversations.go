package chat

import (
	"context"
	"time"

	"github.com/wayfarelabs/wayfare/internal/models"
	"github.com/wayfarelabs/wayfare/internal/store"
)

// ConversationRepo provides CRUD and live queries over conversations.
type ConversationRepo struct {
	db       store.DataStore
	notifier Notifier
	now      func() int64
}

// NewConversationRepo creates a conversation repository.
func NewConversationRepo(db store.DataStore, notifier Notifier) *ConversationRepo {
	return &ConversationRepo{
		db:       db,
		notifier: notifier,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// FetchConversations returns all conversations containing userID, ordered
// by updatedAt descending.
func (r *ConversationRepo) FetchConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	convs, err := r.db.ListConversations(ctx, userID)
	if err != nil {
		return nil, &QueryError{Op: "conversations", Err: err}
	}
	return convs, nil
}

// SubscribeToConversations establishes a live query over userID's
// conversation list. onChange receives the full current result set on
// every change (not a diff), starting with one initial snapshot. onError
// may be nil. The returned unsubscribe is idempotent.
func (r *ConversationRepo) SubscribeToConversations(ctx context.Context, userID string, onChange func([]models.Conversation), onError func(error)) (UnsubscribeFunc, error) {
	topic := conversationsTopic(userID)
	signals, cancel, err := r.notifier.SubscribeChanges(ctx, topic)
	if err != nil {
		return nil, &SubscriptionError{Topic: topic, Err: err}
	}

	deliver := func(ctx context.Context) error {
		convs, err := r.db.ListConversations(ctx, userID)
		if err != nil {
			return &SubscriptionError{Topic: topic, Err: err}
		}
		onChange(convs)
		return nil
	}
	return runSubscription(ctx, signals, cancel, deliver, onError), nil
}

// FindExistingConversation returns the id of the conversation whose
// participants include both ids, or "" if none exists. The pair is
// unordered: FindExistingConversation(a, b) == FindExistingConversation(b, a).
func (r *ConversationRepo) FindExistingConversation(ctx context.Context, a, b string) (string, error) {
	conv, err := r.db.FindConversationByPair(ctx, a, b)
	if err != nil {
		return "", &QueryError{Op: "find conversation", Err: err}
	}
	if conv == nil {
		return "", nil
	}
	return conv.ID, nil
}

// CreateConversation creates a conversation for the participant pair with
// unreadCount=0 and createdAt=updatedAt=now. Creation is idempotent on the
// pair: concurrent creates for the same two users resolve to one
// conversation.
func (r *ConversationRepo) CreateConversation(ctx context.Context, participants []string) (*models.Conversation, error) {
	if len(participants) != 2 || participants[0] == participants[1] {
		return nil, ErrBadParticipants
	}

	conv, err := r.db.CreateConversation(ctx, participants, r.now())
	if err != nil {
		return nil, &WriteError{Op: "create conversation", Err: err}
	}

	for _, p := range conv.Participants {
		_ = r.notifier.PublishChange(ctx, conversationsTopic(p))
	}
	return conv, nil
}

// FindOrCreateConversation reuses the existing conversation for the pair
// or creates one. A second identical call after the first completes yields
// the same conversation id.
func (r *ConversationRepo) FindOrCreateConversation(ctx context.Context, a, b string) (*models.Conversation, bool, error) {
	if id, err := r.FindExistingConversation(ctx, a, b); err != nil {
		return nil, false, err
	} else if id != "" {
		conv, err := r.db.GetConversation(ctx, id)
		if err != nil {
			return nil, false, &QueryError{Op: "get conversation", Err: err}
		}
		return conv, false, nil
	}

	conv, err := r.CreateConversation(ctx, []string{a, b})
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}
