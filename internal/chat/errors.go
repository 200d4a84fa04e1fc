package chat

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage         = errors.New("message text must not be empty")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrBadParticipants      = errors.New("conversation requires exactly 2 distinct participants")
)

// QueryError wraps a failed fetch or query against the remote store.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("query %s: %v", e.Op, e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// WriteError wraps a failed create or update against the remote store.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write %s: %v", e.Op, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// SubscriptionError wraps a live-subscription failure. It is delivered to
// the subscriber's error callback, never panicked.
type SubscriptionError struct {
	Topic string
	Err   error
}

func (e *SubscriptionError) Error() string { return fmt.Sprintf("subscription %s: %v", e.Topic, e.Err) }
func (e *SubscriptionError) Unwrap() error { return e.Err }
