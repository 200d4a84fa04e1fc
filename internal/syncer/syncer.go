// Package syncer maintains a local mirror of a user's conversations,
// messages and peer statuses, fed by one-shot fetches and live
// subscriptions. Live snapshots are authoritative for the set they cover;
// fetch results seed the mirror before the first snapshot arrives and are
// merged in (never removing anything) after it. Read state only moves
// forward: a message observed as read is never shown unread again, even
// when a stale fetch says otherwise.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/wayfarelabs/wayfare/internal/chat"
	"github.com/wayfarelabs/wayfare/internal/models"
)

const (
	fetchAttempts = 3
	fetchTimeout  = 5 * time.Second
	fetchBackoff  = 500 * time.Millisecond
)

// State is a point-in-time copy of the mirror. Slices and maps are owned
// by the caller.
type State struct {
	Conversations []models.Conversation
	Messages      map[string][]models.Message
	Statuses      map[string]models.UserStatus
}

// Syncer is the local mirror. All methods are safe for concurrent use.
type Syncer struct {
	mu            sync.Mutex
	conversations map[string]models.Conversation
	messages      map[string]map[string]models.Message
	statuses      map[string]models.UserStatus
	readSeen      map[string]bool
	liveConvs     bool
	liveMsgs      map[string]bool
	onUpdate      func()
}

// New creates an empty mirror. onUpdate, if non-nil, runs after every
// mutation that changed the mirror; it must not call back into the Syncer.
func New(onUpdate func()) *Syncer {
	return &Syncer{
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string]map[string]models.Message),
		statuses:      make(map[string]models.UserStatus),
		readSeen:      make(map[string]bool),
		liveMsgs:      make(map[string]bool),
		onUpdate:      onUpdate,
	}
}

func (s *Syncer) notify() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

// ApplyConversationSnapshot installs a live snapshot: the given set is
// authoritative and replaces the mirror's conversation list.
func (s *Syncer) ApplyConversationSnapshot(convs []models.Conversation) {
	s.mu.Lock()
	s.conversations = make(map[string]models.Conversation, len(convs))
	for _, conv := range convs {
		s.conversations[conv.ID] = conv
	}
	s.liveConvs = true
	s.mu.Unlock()
	s.notify()
}

// ApplyConversationFetch installs a one-shot fetch result. Before the
// first snapshot it seeds the mirror; after, it only upserts by ID so a
// fetch that raced a snapshot can never remove a conversation the
// snapshot delivered.
func (s *Syncer) ApplyConversationFetch(convs []models.Conversation) {
	s.mu.Lock()
	if !s.liveConvs {
		s.conversations = make(map[string]models.Conversation, len(convs))
	}
	for _, conv := range convs {
		s.conversations[conv.ID] = conv
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyMessageSnapshot installs a live snapshot of one conversation's
// messages, replacing the mirror's set for that conversation.
func (s *Syncer) ApplyMessageSnapshot(convID string, msgs []models.Message) {
	s.mu.Lock()
	set := make(map[string]models.Message, len(msgs))
	for _, msg := range msgs {
		set[msg.ID] = s.withReadState(msg)
	}
	s.messages[convID] = set
	s.liveMsgs[convID] = true
	s.mu.Unlock()
	s.notify()
}

// ApplyMessageFetch installs a one-shot fetch of one conversation's
// messages, with the same pre-live/post-live policy as conversations.
func (s *Syncer) ApplyMessageFetch(convID string, msgs []models.Message) {
	s.mu.Lock()
	set := s.messages[convID]
	if set == nil || !s.liveMsgs[convID] {
		set = make(map[string]models.Message, len(msgs))
		s.messages[convID] = set
	}
	for _, msg := range msgs {
		set[msg.ID] = s.withReadState(msg)
	}
	s.mu.Unlock()
	s.notify()
}

// withReadState records and enforces monotonic read state. Caller holds mu.
func (s *Syncer) withReadState(msg models.Message) models.Message {
	if msg.Read {
		s.readSeen[msg.ID] = true
	} else if s.readSeen[msg.ID] {
		msg.Read = true
	}
	return msg
}

// ApplyStatuses upserts peer statuses into the mirror.
func (s *Syncer) ApplyStatuses(statuses []models.UserStatus) {
	s.mu.Lock()
	for _, status := range statuses {
		s.statuses[status.UserID] = status
	}
	s.mu.Unlock()
	s.notify()
}

// Snapshot copies the mirror's current state.
func (s *Syncer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := State{
		Conversations: make([]models.Conversation, 0, len(s.conversations)),
		Messages:      make(map[string][]models.Message, len(s.messages)),
		Statuses:      make(map[string]models.UserStatus, len(s.statuses)),
	}
	for _, conv := range s.conversations {
		state.Conversations = append(state.Conversations, conv)
	}
	for convID, set := range s.messages {
		msgs := make([]models.Message, 0, len(set))
		for _, msg := range set {
			msgs = append(msgs, msg)
		}
		state.Messages[convID] = msgs
	}
	for id, status := range s.statuses {
		state.Statuses[id] = status
	}
	return state
}

// ConversationSource is what AttachConversations needs from the chat
// layer; *chat.ConversationRepo satisfies it.
type ConversationSource interface {
	FetchConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	SubscribeToConversations(ctx context.Context, userID string, onChange func([]models.Conversation), onError func(error)) (chat.UnsubscribeFunc, error)
}

// MessageSource is what AttachMessages needs; *chat.MessageRepo
// satisfies it.
type MessageSource interface {
	FetchMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SubscribeToMessages(ctx context.Context, conversationID string, onChange func([]models.Message), onError func(error)) (chat.UnsubscribeFunc, error)
}

// AttachConversations wires the mirror to a user's conversation feed: it
// subscribes first, then runs the one-shot fetch with bounded retries in
// the background. onError receives subscription and final fetch failures.
// The returned teardown is idempotent.
func (s *Syncer) AttachConversations(ctx context.Context, source ConversationSource, userID string, onError func(error)) (func(), error) {
	unsubscribe, err := source.SubscribeToConversations(ctx, userID, s.ApplyConversationSnapshot, onError)
	if err != nil {
		return nil, err
	}

	go func() {
		convs, err := fetchWithRetry(ctx, func(ctx context.Context) ([]models.Conversation, error) {
			return source.FetchConversations(ctx, userID)
		})
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		s.ApplyConversationFetch(convs)
	}()

	var once sync.Once
	return func() { once.Do(unsubscribe) }, nil
}

// AttachMessages wires the mirror to one conversation's message feed,
// with the same subscribe-then-fetch sequencing as AttachConversations.
func (s *Syncer) AttachMessages(ctx context.Context, source MessageSource, conversationID string, onError func(error)) (func(), error) {
	unsubscribe, err := source.SubscribeToMessages(ctx, conversationID, func(msgs []models.Message) {
		s.ApplyMessageSnapshot(conversationID, msgs)
	}, onError)
	if err != nil {
		return nil, err
	}

	go func() {
		msgs, err := fetchWithRetry(ctx, func(ctx context.Context) ([]models.Message, error) {
			return source.FetchMessages(ctx, conversationID)
		})
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		s.ApplyMessageFetch(conversationID, msgs)
	}()

	var once sync.Once
	return func() { once.Do(unsubscribe) }, nil
}

// fetchWithRetry runs fn up to fetchAttempts times with a per-attempt
// timeout, backing off between attempts. Gives up early when ctx ends.
func fetchWithRetry[T any](ctx context.Context, fn func(context.Context) ([]T, error)) ([]T, error) {
	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(fetchBackoff << (attempt - 1)):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		result, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
