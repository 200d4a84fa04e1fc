package chat

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wayfarelabs/wayfare/internal/metrics"
	"github.com/wayfarelabs/wayfare/internal/models"
	"github.com/wayfarelabs/wayfare/internal/store"
)

// MessageRepo provides CRUD and live queries over messages.
type MessageRepo struct {
	db       store.DataStore
	notifier Notifier
	presence PresenceReader // optional
	pusher   Pusher         // optional
	now      func() int64
	newID    func() string
}

// NewMessageRepo creates a message repository. presence and pusher may be
// nil; when both are set, sending to an offline counterpart queues a
// delivery notice.
func NewMessageRepo(db store.DataStore, notifier Notifier, presence PresenceReader, pusher Pusher) *MessageRepo {
	return &MessageRepo{
		db:       db,
		notifier: notifier,
		presence: presence,
		pusher:   pusher,
		now:      func() int64 { return time.Now().UnixMilli() },
		newID:    func() string { return ulid.Make().String() },
	}
}

// SendMessageInput carries the caller-supplied fields of a new message.
// Timestamp and id are assigned server-side.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Text           string
}

// FetchMessages returns all messages for the conversation ordered by
// timestamp ascending.
func (r *MessageRepo) FetchMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs, err := r.db.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, &QueryError{Op: "messages", Err: err}
	}
	return msgs, nil
}

// SubscribeToMessages establishes a live query over a conversation's
// messages with the same full-snapshot callback semantics as
// SubscribeToConversations. The returned unsubscribe is idempotent.
func (r *MessageRepo) SubscribeToMessages(ctx context.Context, conversationID string, onChange func([]models.Message), onError func(error)) (UnsubscribeFunc, error) {
	topic := messagesTopic(conversationID)
	signals, cancel, err := r.notifier.SubscribeChanges(ctx, topic)
	if err != nil {
		return nil, &SubscriptionError{Topic: topic, Err: err}
	}

	deliver := func(ctx context.Context) error {
		msgs, err := r.db.ListMessages(ctx, conversationID)
		if err != nil {
			return &SubscriptionError{Topic: topic, Err: err}
		}
		onChange(msgs)
		return nil
	}
	return runSubscription(ctx, signals, cancel, deliver, onError), nil
}

// SendMessage creates a message with a server-assigned timestamp and
// read=false, then updates the parent conversation's lastMessage,
// updatedAt and unreadCount. The two writes are intentionally separate,
// not a store transaction, matching the document-store behavior this
// mirrors. The unread increment is unconditional: it is a running count
// on the conversation, not scoped to the receiving participant.
func (r *MessageRepo) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := r.db.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, &QueryError{Op: "get conversation", Err: err}
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	msg := &models.Message{
		ID:             r.newID(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Text:           in.Text,
		Timestamp:      r.now(),
		Read:           false,
	}

	if err := r.db.InsertMessage(ctx, msg); err != nil {
		return nil, &WriteError{Op: "insert message", Err: err}
	}
	if err := r.db.UpdateConversationOnSend(ctx, in.ConversationID, *msg); err != nil {
		return nil, &WriteError{Op: "update conversation", Err: err}
	}

	metrics.MessagesSent.Inc()

	_ = r.notifier.PublishChange(ctx, messagesTopic(in.ConversationID))
	for _, p := range conv.Participants {
		_ = r.notifier.PublishChange(ctx, conversationsTopic(p))
	}

	r.maybeQueueNotice(ctx, *msg, conv.Counterpart(in.SenderID))

	return msg, nil
}

// maybeQueueNotice enqueues an offline-delivery notice for the recipient
// when they are not online. Best-effort: a queue failure never fails the
// send.
func (r *MessageRepo) maybeQueueNotice(ctx context.Context, msg models.Message, recipientID string) {
	if r.presence == nil || r.pusher == nil || recipientID == "" {
		return
	}
	online, err := r.presence.IsOnline(ctx, recipientID)
	if err != nil || online {
		return
	}
	_ = r.pusher.EnqueueMessageNotice(ctx, msg, recipientID)
}

// MarkAsRead flags every unread message in the conversation that was not
// sent by userID, one write per message, then resets the conversation's
// unread count. When there is nothing unread, no conversation write
// happens at all.
func (r *MessageRepo) MarkAsRead(ctx context.Context, conversationID, userID string) ([]string, error) {
	unread, err := r.db.ListUnreadMessages(ctx, conversationID, userID)
	if err != nil {
		return nil, &QueryError{Op: "unread messages", Err: err}
	}

	messageIDs := make([]string, 0, len(unread))
	for _, msg := range unread {
		if err := r.db.MarkMessageRead(ctx, msg.ID); err != nil {
			return messageIDs, &WriteError{Op: "mark read", Err: err}
		}
		messageIDs = append(messageIDs, msg.ID)
	}

	if len(messageIDs) > 0 {
		if err := r.db.ResetUnread(ctx, conversationID); err != nil {
			return messageIDs, &WriteError{Op: "reset unread", Err: err}
		}
		_ = r.notifier.PublishChange(ctx, messagesTopic(conversationID))
		_ = r.notifier.PublishChange(ctx, conversationsTopic(userID))
		// Every flagged message came from the counterpart, whose
		// conversation row changed as well.
		_ = r.notifier.PublishChange(ctx, conversationsTopic(unread[0].SenderID))
	}

	return messageIDs, nil
}
