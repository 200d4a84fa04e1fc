// Package chat implements the conversation and message repositories: CRUD
// and live full-snapshot queries over the document store, with change
// signals fanned out through a notifier.
package chat

import (
	"context"
	"sync"

	"github.com/wayfarelabs/wayfare/internal/models"
)

// Notifier fans out change signals for live queries. A signal carries no
// payload: subscribers re-run their query and deliver a fresh full
// snapshot, so duplicate or coalesced signals are harmless.
type Notifier interface {
	PublishChange(ctx context.Context, topic string) error
	SubscribeChanges(ctx context.Context, topic string) (<-chan struct{}, func(), error)
}

// PresenceReader reports whether a user is currently online. Used to
// decide if an offline-delivery notice should be queued.
type PresenceReader interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// Pusher enqueues a notification for a recipient who is not online to
// receive the message live.
type Pusher interface {
	EnqueueMessageNotice(ctx context.Context, msg models.Message, recipientID string) error
}

// UnsubscribeFunc tears down a live subscription. Implementations are
// idempotent: calling it more than once is a no-op.
type UnsubscribeFunc func()

// conversationsTopic names the change-feed topic for a user's
// conversation list.
func conversationsTopic(userID string) string {
	return "conversations:" + userID
}

// messagesTopic names the change-feed topic for a conversation's messages.
func messagesTopic(conversationID string) string {
	return "messages:" + conversationID
}

// runSubscription re-queries on every change signal and hands the full
// result set to deliver. It also delivers one initial snapshot so a new
// subscriber starts consistent. Returned teardown is idempotent.
func runSubscription(ctx context.Context, signals <-chan struct{}, cancelSignals func(), deliver func(ctx context.Context) error, onError func(error)) UnsubscribeFunc {
	subCtx, cancelCtx := context.WithCancel(ctx)

	go func() {
		if err := deliver(subCtx); err != nil && onError != nil {
			onError(err)
		}
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				if err := deliver(subCtx); err != nil && onError != nil {
					onError(err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancelSignals()
			cancelCtx()
		})
	}
}
