package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfarelabs/wayfare/internal/metrics"
	"github.com/wayfarelabs/wayfare/internal/models"
	"github.com/wayfarelabs/wayfare/internal/store"
)

// MessageNoticeTaskType is the queue task name for offline message
// notices.
const MessageNoticeTaskType = "chat:notify_message"

// MessageNoticePayload is the JSON payload transported via the queue.
type MessageNoticePayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	RecipientID    string `json:"recipientId"`
	Preview        string `json:"preview"`
	Timestamp      int64  `json:"timestamp"`
}

const previewLimit = 120

// NoticePusher queues offline-delivery notices. It satisfies the chat
// layer's Pusher contract.
type NoticePusher struct {
	client Client
}

// NewNoticePusher creates a NoticePusher.
func NewNoticePusher(client Client) *NoticePusher {
	return &NoticePusher{client: client}
}

// EnqueueMessageNotice queues a notice for a recipient who was offline at
// send time. Deduplicated per message.
func (p *NoticePusher) EnqueueMessageNotice(ctx context.Context, msg models.Message, recipientID string) error {
	preview := msg.Text
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}

	payload, err := json.Marshal(MessageNoticePayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		RecipientID:    recipientID,
		Preview:        preview,
		Timestamp:      msg.Timestamp,
	})
	if err != nil {
		return err
	}

	_, err = p.client.Enqueue(ctx, Task{Type: MessageNoticeTaskType, Payload: payload}, EnqueueOption{
		Queue:     "notify",
		MaxRetry:  5,
		UniqueTTL: time.Minute,
	})
	if err != nil {
		return err
	}

	metrics.NoticesQueued.Inc()
	return nil
}

// RegisterMessageNoticeTask binds the notice handler to the worker
// server. Delivery drops when the recipient read the message before the
// worker got to it.
func RegisterMessageNoticeTask(srv Server, db store.DataStore, logger zerolog.Logger) {
	srv.Register(MessageNoticeTaskType, func(ctx context.Context, t Task) error {
		var p MessageNoticePayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// Malformed payload: retrying cannot help.
			logger.Error().Err(err).Msg("invalid notice payload")
			return nil
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		unread, err := db.ListUnreadMessages(ctx, p.ConversationID, p.RecipientID)
		if err != nil {
			return err
		}
		stillUnread := false
		for _, msg := range unread {
			if msg.ID == p.MessageID {
				stillUnread = true
				break
			}
		}
		if !stillUnread {
			logger.Debug().Str("message", p.MessageID).Msg("notice skipped, already read")
			return nil
		}

		sender, err := db.GetUserByID(ctx, p.SenderID)
		if err != nil {
			return err
		}
		senderName := p.SenderID
		if sender != nil && sender.Name != "" {
			senderName = sender.Name
		}

		// Delivery transport (APNs/FCM) hangs off here; for now the notice
		// is recorded in the log stream.
		logger.Info().
			Str("recipient", p.RecipientID).
			Str("sender", senderName).
			Str("conversation", p.ConversationID).
			Str("preview", p.Preview).
			Msg("message notice")
		return nil
	})
}
