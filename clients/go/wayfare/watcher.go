package wayfare

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wayfarelabs/wayfare/internal/realtime"
	"github.com/wayfarelabs/wayfare/internal/syncer"
)

// Watcher keeps a local mirror of the signed-in user's conversations,
// messages and peer statuses, fed over the websocket. The server pushes
// full snapshots per scope; one-shot HTTP fetches seed the mirror so the
// first paint does not wait for a change.
type Watcher struct {
	client   *Client
	mirror   *syncer.Syncer
	conn     *websocket.Conn
	onUpdate func(syncer.State)

	mu      sync.Mutex
	closed  bool
	closeFn sync.Once
}

// Watch opens the live connection and subscribes to the conversation
// list. onUpdate runs after every mirror change with a fresh snapshot.
func (c *Client) Watch(ctx context.Context, onUpdate func(syncer.State)) (*Watcher, error) {
	wsURL, err := websocketURL(c.BaseURL, c.Token)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		client:   c,
		conn:     conn,
		onUpdate: onUpdate,
	}
	w.mirror = syncer.New(func() {
		if w.onUpdate != nil {
			w.onUpdate(w.mirror.Snapshot())
		}
	})

	if err := w.send(realtime.Command{Type: "subscribe.conversations"}); err != nil {
		conn.Close()
		return nil, err
	}

	go w.readLoop()
	go w.seedConversations(ctx)

	return w, nil
}

// Snapshot returns the mirror's current state.
func (w *Watcher) Snapshot() syncer.State {
	return w.mirror.Snapshot()
}

// WatchConversation opens the live message feed for one conversation and
// seeds it with a one-shot fetch.
func (w *Watcher) WatchConversation(ctx context.Context, conversationID string) error {
	if err := w.send(realtime.Command{Type: "subscribe.messages", ConversationID: conversationID}); err != nil {
		return err
	}

	go w.seedMessages(ctx, conversationID)
	return nil
}

// WatchPresence watches the given users' statuses.
func (w *Watcher) WatchPresence(userIDs []string) error {
	return w.send(realtime.Command{Type: "presence.watch", UserIDs: userIDs})
}

// SetOnline reports the app's foreground state.
func (w *Watcher) SetOnline(online bool) error {
	return w.send(realtime.Command{Type: "status.set", Online: &online})
}

// Close tears the connection down. Safe to call more than once.
func (w *Watcher) Close() error {
	w.closeFn.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.conn.Close()
	})
	return nil
}

func (w *Watcher) send(cmd realtime.Command) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return websocket.ErrCloseSent
	}
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(cmd)
}

func (w *Watcher) readLoop() {
	defer w.Close()

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return
		}

		var event realtime.Event
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}

		switch event.Type {
		case "conversations":
			w.mirror.ApplyConversationSnapshot(event.Conversations)
		case "messages":
			w.mirror.ApplyMessageSnapshot(event.ConversationID, event.Messages)
		case "statuses":
			w.mirror.ApplyStatuses(event.Statuses)
		}
	}
}

// seedConversations runs the one-shot HTTP fetch with bounded retries.
// If a live snapshot lands first it wins; the fetch then only merges.
func (w *Watcher) seedConversations(ctx context.Context) {
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		convs, err := w.client.ListConversations()
		if err == nil {
			w.mirror.ApplyConversationFetch(convs)
			return
		}
	}
}

// seedMessages mirrors seedConversations for one conversation's feed.
func (w *Watcher) seedMessages(ctx context.Context, conversationID string) {
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		msgs, err := w.client.ListMessages(conversationID)
		if err == nil {
			w.mirror.ApplyMessageFetch(conversationID, msgs)
			return
		}
	}
}

// websocketURL converts the HTTP base URL to the websocket endpoint,
// carrying the token as a query parameter.
func websocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch {
	case u.Scheme == "https":
		u.Scheme = "wss"
	case strings.HasPrefix(u.Scheme, "ws"):
		// already a websocket scheme
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
