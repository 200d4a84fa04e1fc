package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wayfarelabs/wayfare/internal/models"
)

type fakePresence struct {
	online map[string]bool
}

func (f *fakePresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	return f.online[userID], nil
}

type fakePusher struct {
	mu      sync.Mutex
	notices []string
}

func (f *fakePusher) EnqueueMessageNotice(ctx context.Context, msg models.Message, recipientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, recipientID)
	return nil
}

func (f *fakePusher) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notices...)
}

func newTestMessageRepo(t *testing.T) (*MessageRepo, *ConversationRepo, *memStore, *models.Conversation) {
	t.Helper()
	db := newMemStore()
	notifier := NewMemoryNotifier()
	convRepo := NewConversationRepo(db, notifier)
	msgRepo := NewMessageRepo(db, notifier, nil, nil)

	conv, err := convRepo.CreateConversation(context.Background(), []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return msgRepo, convRepo, db, conv
}

func TestSendMessageValidation(t *testing.T) {
	repo, _, _, conv := newTestMessageRepo(t)
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := repo.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "alice", Text: text})
		if !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("text %q: expected ErrEmptyMessage, got %v", text, err)
		}
	}

	_, err := repo.SendMessage(ctx, SendMessageInput{ConversationID: "missing", SenderID: "alice", Text: "hello"})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestSendMessageAssignsServerFields(t *testing.T) {
	repo, _, _, conv := newTestMessageRepo(t)
	repo.now = func() int64 { return 4242 }
	repo.newID = func() string { return "msg-1" }

	msg, err := repo.SendMessage(context.Background(), SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Text:           "hello",
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.ID != "msg-1" || msg.Timestamp != 4242 {
		t.Fatalf("server-assigned fields wrong: %+v", msg)
	}
	if msg.Read {
		t.Fatal("new message must start unread")
	}
}

func TestSendMessageUpdatesConversation(t *testing.T) {
	repo, _, db, conv := newTestMessageRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "alice", Text: "hi"}); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}

	got, err := db.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.LastMessage == nil || got.LastMessage.Text != "hi" {
		t.Fatalf("lastMessage not updated: %+v", got.LastMessage)
	}
	// The count is a running conversation total, bumped on every send
	// regardless of who sent.
	if got.UnreadCount != 3 {
		t.Fatalf("expected unreadCount=3, got %d", got.UnreadCount)
	}
	if got.UpdatedAt < conv.UpdatedAt {
		t.Fatal("updatedAt went backwards")
	}
}

func TestSendMessageQueuesNoticeForOfflineRecipient(t *testing.T) {
	db := newMemStore()
	notifier := NewMemoryNotifier()
	convRepo := NewConversationRepo(db, notifier)
	presence := &fakePresence{online: map[string]bool{"bob": false}}
	pusher := &fakePusher{}
	repo := NewMessageRepo(db, notifier, presence, pusher)
	ctx := context.Background()

	conv, err := convRepo.CreateConversation(ctx, []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	if _, err := repo.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "alice", Text: "hi"}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if got := pusher.recipients(); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("expected one notice for bob, got %v", got)
	}

	presence.online["bob"] = true
	if _, err := repo.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "alice", Text: "hi again"}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if got := pusher.recipients(); len(got) != 1 {
		t.Fatalf("online recipient must not be queued, got %v", got)
	}
}

func TestMessageSubscriptionSeesSend(t *testing.T) {
	repo, _, _, conv := newTestMessageRepo(t)
	ctx := context.Background()

	got := make(chan []models.Message, 8)
	unsubscribe, err := repo.SubscribeToMessages(ctx, conv.ID, func(msgs []models.Message) {
		got <- msgs
	}, nil)
	if err != nil {
		t.Fatalf("SubscribeToMessages failed: %v", err)
	}
	defer unsubscribe()

	if initial := waitForSnapshot(t, got); len(initial) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(initial))
	}

	if _, err := repo.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "alice", Text: "hello"}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msgs := <-got:
			if len(msgs) == 1 && msgs[0].Text == "hello" {
				return
			}
		case <-deadline:
			t.Fatal("send never reached the subscription")
		}
	}
}

func TestMarkAsRead(t *testing.T) {
	repo, _, db, conv := newTestMessageRepo(t)
	ctx := context.Background()

	// Two from alice, one from bob: bob marking as read only flags
	// alice's.
	for _, send := range []SendMessageInput{
		{ConversationID: conv.ID, SenderID: "alice", Text: "one"},
		{ConversationID: conv.ID, SenderID: "alice", Text: "two"},
		{ConversationID: conv.ID, SenderID: "bob", Text: "three"},
	} {
		if _, err := repo.SendMessage(ctx, send); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}

	marked, err := repo.MarkAsRead(ctx, conv.ID, "bob")
	if err != nil {
		t.Fatalf("MarkAsRead failed: %v", err)
	}
	if len(marked) != 2 {
		t.Fatalf("expected 2 marked messages, got %d", len(marked))
	}

	got, err := db.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.UnreadCount != 0 {
		t.Fatalf("expected unread reset, got %d", got.UnreadCount)
	}

	msgs, err := db.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	for _, msg := range msgs {
		if msg.SenderID == "alice" && !msg.Read {
			t.Fatalf("alice's message %s still unread", msg.ID)
		}
		if msg.SenderID == "bob" && msg.Read {
			t.Fatalf("bob's own message %s should stay unread", msg.ID)
		}
	}
}

func TestMarkAsReadNoopWhenNothingUnread(t *testing.T) {
	repo, _, _, conv := newTestMessageRepo(t)
	ctx := context.Background()

	marked, err := repo.MarkAsRead(ctx, conv.ID, "bob")
	if err != nil {
		t.Fatalf("MarkAsRead failed: %v", err)
	}
	if len(marked) != 0 {
		t.Fatalf("expected no marked messages, got %v", marked)
	}
}
