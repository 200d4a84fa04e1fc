package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wayfarelabs/wayfare/internal/api/middleware"
	"github.com/wayfarelabs/wayfare/internal/chat"
	"github.com/wayfarelabs/wayfare/internal/models"
	"github.com/wayfarelabs/wayfare/internal/presence"
)

// wsStore is an in-memory DataStore covering what the hub's repositories
// touch. Everything else is stubbed.
type wsStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	nextConv      int
}

func newWSStore() *wsStore {
	return &wsStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
	}
}

func (m *wsStore) Close() {}

func (m *wsStore) Ping(ctx context.Context) error { return nil }

func (m *wsStore) CountUsers(ctx context.Context) (int64, error) { return 0, nil }

func (m *wsStore) UpsertUser(ctx context.Context, user models.User) (*models.User, error) {
	return &user, nil
}

func (m *wsStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return nil, nil
}

func (m *wsStore) ListUsers(ctx context.Context, excludeID string) ([]models.User, error) {
	return nil, nil
}

func (m *wsStore) CreateConversation(ctx context.Context, participants []string, now int64) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

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
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.conversations[conv.ID] = conv
	out := *conv
	return &out, nil
}

func (m *wsStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, nil
	}
	out := *conv
	return &out, nil
}

func (m *wsStore) FindConversationByPair(ctx context.Context, a, b string) (*models.Conversation, error) {
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

func (m *wsStore) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
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

func (m *wsStore) UpdateConversationOnSend(ctx context.Context, id string, last models.Message) error {
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

func (m *wsStore) ResetUnread(ctx context.Context, id string) error { return nil }

func (m *wsStore) CountConversations(ctx context.Context) (int64, error) { return 0, nil }

func (m *wsStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *msg
	m.messages[msg.ID] = &out
	return nil
}

func (m *wsStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
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

func (m *wsStore) ListUnreadMessages(ctx context.Context, conversationID, excludeSender string) ([]models.Message, error) {
	return nil, nil
}

func (m *wsStore) MarkMessageRead(ctx context.Context, messageID string) error { return nil }

func (m *wsStore) CountMessages(ctx context.Context) (int64, error) { return 0, nil }

func (m *wsStore) InsertTravelLog(ctx context.Context, log *models.TravelLog) error { return nil }

func (m *wsStore) ListTravelLogs(ctx context.Context, userID string) ([]models.TravelLog, error) {
	return nil, nil
}

func (m *wsStore) SearchTravelLogs(ctx context.Context, userID, query string, limit int) ([]models.TravelLog, error) {
	return nil, nil
}

func (m *wsStore) CountTravelLogs(ctx context.Context) (int64, error) { return 0, nil }

type wsFixture struct {
	srv   *httptest.Server
	convs *chat.ConversationRepo
	msgs  *chat.MessageRepo
	pres  *presence.Channel
}

// newWSFixture stands up the hub behind the same response-writer-wrapping
// middleware the router installs, so the handshake exercises the full
// production chain. The ?as= query parameter stands in for the verified
// session.
func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	db := newWSStore()
	notifier := chat.NewMemoryNotifier()
	pres := presence.NewChannel(presence.NewMemoryStore(), 90*time.Second)
	convs := chat.NewConversationRepo(db, notifier)
	msgs := chat.NewMessageRepo(db, notifier, pres, nil)
	hub := NewHub(convs, msgs, pres, zerolog.Nop())

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("as"); id != "" {
			ctx := context.WithValue(r.Context(), middleware.UserContextKey, &models.User{ID: id, Name: id})
			r = r.WithContext(ctx)
		}
		hub.ServeWS(w, r)
	})
	handler := middleware.Metrics(middleware.SecurityHeaders(middleware.Logger(zerolog.Nop())(inner)))

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &wsFixture{srv: srv, convs: convs, msgs: msgs, pres: pres}
}

func (f *wsFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/?as=" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial as %s failed (status %d): %v", userID, status, err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return event
}

func waitOnline(t *testing.T, pres *presence.Channel, userID string, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		online, err := pres.IsOnline(context.Background(), userID)
		if err == nil && online == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %s: online=%v never observed", userID, want)
}

func TestUpgradeSucceedsBehindMiddleware(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t, "alice")
	defer conn.Close()

	// A completed handshake proves the response writer stayed hijackable
	// through the wrapping middleware.
	if err := conn.WriteJSON(Command{Type: "subscribe.conversations"}); err != nil {
		t.Fatalf("write after upgrade: %v", err)
	}
	if event := readEvent(t, conn); event.Type != "conversations" {
		t.Fatalf("event type = %q, want conversations", event.Type)
	}
}

func TestUnauthenticatedUpgradeRejected(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatal("dial without a session succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
}

func TestConnectMarksOnlineDisconnectMarksOffline(t *testing.T) {
	f := newWSFixture(t)

	conn := f.dial(t, "alice")
	waitOnline(t, f.pres, "alice", true)

	// Drop the TCP connection without a close frame: the session's
	// registered disconnect action must still run.
	conn.Close()
	waitOnline(t, f.pres, "alice", false)
}

func TestSubscribeConversationsPushesFullSnapshots(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()

	if _, _, err := f.convs.FindOrCreateConversation(ctx, "alice", "bob"); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	conn := f.dial(t, "alice")
	defer conn.Close()

	if err := conn.WriteJSON(Command{Type: "subscribe.conversations"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	event := readEvent(t, conn)
	if event.Type != "conversations" || len(event.Conversations) != 1 {
		t.Fatalf("initial snapshot = %+v, want 1 conversation", event)
	}

	if _, _, err := f.convs.FindOrCreateConversation(ctx, "alice", "carol"); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	event = readEvent(t, conn)
	if event.Type != "conversations" || len(event.Conversations) != 2 {
		t.Fatalf("snapshot after create = %+v, want 2 conversations", event)
	}
}

func TestSubscribeMessagesRequiresParticipation(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()

	conv, _, err := f.convs.FindOrCreateConversation(ctx, "bob", "carol")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	conn := f.dial(t, "alice")
	defer conn.Close()

	if err := conn.WriteJSON(Command{Type: "subscribe.messages", ConversationID: conv.ID}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	event := readEvent(t, conn)
	if event.Type != "error" || event.Error != "not a participant" {
		t.Fatalf("event = %+v, want participation error", event)
	}
}

func TestSubscribeMessagesDeliversSends(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()

	conv, _, err := f.convs.FindOrCreateConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	conn := f.dial(t, "alice")
	defer conn.Close()

	if err := conn.WriteJSON(Command{Type: "subscribe.messages", ConversationID: conv.ID}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if event := readEvent(t, conn); event.Type != "messages" || len(event.Messages) != 0 {
		t.Fatalf("initial snapshot = %+v, want empty messages", event)
	}

	if _, err := f.msgs.SendMessage(ctx, chat.SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       "bob",
		Text:           "hello",
	}); err != nil {
		t.Fatalf("send: %v", err)
	}

	event := readEvent(t, conn)
	if event.Type != "messages" || len(event.Messages) != 1 || event.Messages[0].Text != "hello" {
		t.Fatalf("snapshot after send = %+v, want the sent message", event)
	}
}
