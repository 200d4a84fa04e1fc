// Package realtime carries live snapshots to connected clients over
// websockets. A session subscribes to the caller's conversation list,
// individual conversations and peer presence; every change pushes the
// full current result set for the affected scope. Connecting marks the
// user online; the registered disconnect action marks them offline when
// the socket closes, however it closes.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wayfarelabs/wayfare/internal/api/middleware"
	"github.com/wayfarelabs/wayfare/internal/chat"
	"github.com/wayfarelabs/wayfare/internal/metrics"
	"github.com/wayfarelabs/wayfare/internal/models"
	"github.com/wayfarelabs/wayfare/internal/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxCommandSize = 4 * 1024
	sendBuffer     = 32
)

// Command is a client-to-server frame.
type Command struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversationId,omitempty"`
	UserIDs        []string `json:"userIds,omitempty"`
	Online         *bool    `json:"online,omitempty"`
}

// Event is a server-to-client frame.
type Event struct {
	Type           string                `json:"type"`
	ConversationID string                `json:"conversationId,omitempty"`
	Conversations  []models.Conversation `json:"conversations,omitempty"`
	Messages       []models.Message      `json:"messages,omitempty"`
	Statuses       []models.UserStatus   `json:"statuses,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// Hub upgrades websocket connections and runs a session per connection.
type Hub struct {
	convs    *chat.ConversationRepo
	msgs     *chat.MessageRepo
	presence *presence.Channel
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a Hub.
func NewHub(convs *chat.ConversationRepo, msgs *chat.MessageRepo, pres *presence.Channel, logger zerolog.Logger) *Hub {
	return &Hub{
		convs:    convs,
		msgs:     msgs,
		presence: pres,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Session auth happens before the upgrade; origins are open
			// like the rest of the API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS handles GET /ws. Requires an authenticated user in the request
// context.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("user", user.ID).Msg("websocket upgrade failed")
		return
	}

	session := &session{
		hub:    h,
		conn:   conn,
		userID: user.ID,
		send:   make(chan Event, sendBuffer),
		subs:   make(map[string]func()),
		logger: h.logger.With().Str("user", user.ID).Logger(),
	}
	session.run(r.Context())
}

// session is one connected client.
type session struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan Event
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[string]func() // subscription key -> teardown
}

func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	metrics.RealtimeSessions.Inc()
	defer metrics.RealtimeSessions.Dec()

	disconnect, err := s.hub.presence.SetPresence(ctx, s.userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to set presence")
		s.conn.Close()
		return
	}
	// Runs on every exit path: the user goes offline when the socket
	// does.
	defer disconnect()
	defer s.teardownSubs()

	go s.writeLoop(ctx, cancel)
	s.readLoop(ctx, cancel)
}

func (s *session) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	defer s.conn.Close()

	s.conn.SetReadLimit(maxCommandSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		// A live socket keeps the presence deadline fresh.
		_ = s.hub.presence.Heartbeat(ctx, s.userID)
		return nil
	})

	for {
		var cmd Command
		if err := s.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		s.handleCommand(ctx, cmd)
	}
}

func (s *session) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer cancel()
	defer s.conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) handleCommand(ctx context.Context, cmd Command) {
	switch cmd.Type {
	case "subscribe.conversations":
		s.subscribeConversations(ctx)
	case "subscribe.messages":
		s.subscribeMessages(ctx, cmd.ConversationID)
	case "unsubscribe.messages":
		s.dropSub("messages:" + cmd.ConversationID)
	case "presence.watch":
		s.watchPresence(ctx, cmd.UserIDs)
	case "status.set":
		if cmd.Online != nil {
			_ = s.hub.presence.SetStatus(ctx, models.UserStatus{
				UserID:   s.userID,
				Online:   *cmd.Online,
				LastSeen: time.Now().UnixMilli(),
			})
		}
	default:
		s.push(Event{Type: "error", Error: "unknown command: " + cmd.Type})
	}
}

func (s *session) subscribeConversations(ctx context.Context) {
	const key = "conversations"
	if s.hasSub(key) {
		return
	}

	unsubscribe, err := s.hub.convs.SubscribeToConversations(ctx, s.userID, func(convs []models.Conversation) {
		metrics.SnapshotsPushed.WithLabelValues("conversations").Inc()
		s.push(Event{Type: "conversations", Conversations: convs})
	}, s.pushError)
	if err != nil {
		s.pushError(err)
		return
	}
	s.storeSub(key, unsubscribe)
}

func (s *session) subscribeMessages(ctx context.Context, conversationID string) {
	if conversationID == "" {
		s.push(Event{Type: "error", Error: "conversationId is required"})
		return
	}

	// Participant check before the feed opens.
	conv, err := s.hub.convs.FetchConversations(ctx, s.userID)
	if err != nil {
		s.pushError(err)
		return
	}
	member := false
	for _, c := range conv {
		if c.ID == conversationID {
			member = true
			break
		}
	}
	if !member {
		s.push(Event{Type: "error", Error: "not a participant"})
		return
	}

	key := "messages:" + conversationID
	if s.hasSub(key) {
		return
	}

	unsubscribe, err := s.hub.msgs.SubscribeToMessages(ctx, conversationID, func(msgs []models.Message) {
		metrics.SnapshotsPushed.WithLabelValues("messages").Inc()
		s.push(Event{Type: "messages", ConversationID: conversationID, Messages: msgs})
	}, s.pushError)
	if err != nil {
		s.pushError(err)
		return
	}
	s.storeSub(key, unsubscribe)
}

func (s *session) watchPresence(ctx context.Context, userIDs []string) {
	const key = "presence"
	// Re-watching replaces the previous watch set.
	s.dropSub(key)

	unsubscribe, err := s.hub.presence.SubscribeToStatus(ctx, userIDs, func(statuses []models.UserStatus) {
		metrics.SnapshotsPushed.WithLabelValues("statuses").Inc()
		s.push(Event{Type: "statuses", Statuses: statuses})
	})
	if err != nil {
		s.pushError(err)
		return
	}
	s.storeSub(key, unsubscribe)
}

func (s *session) push(event Event) {
	select {
	case s.send <- event:
	default:
		// Slow consumer: drop the event. The next change pushes a full
		// snapshot again, so nothing is permanently lost.
		s.logger.Warn().Str("event", event.Type).Msg("dropping event for slow consumer")
	}
}

func (s *session) pushError(err error) {
	s.push(Event{Type: "error", Error: err.Error()})
}

func (s *session) hasSub(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[key]
	return ok
}

func (s *session) storeSub(key string, teardown func()) {
	s.mu.Lock()
	prev := s.subs[key]
	s.subs[key] = teardown
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (s *session) dropSub(key string) {
	s.mu.Lock()
	teardown := s.subs[key]
	delete(s.subs, key)
	s.mu.Unlock()
	if teardown != nil {
		teardown()
	}
}

func (s *session) teardownSubs() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]func())
	s.mu.Unlock()
	for _, teardown := range subs {
		teardown()
	}
}
