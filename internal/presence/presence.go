// Package presence tracks online/offline status per user over a realtime
// key-value channel. Each user is either Offline (the initial state, also
// the reading for a missing record) or Online; going offline happens
// explicitly, through the disconnect action registered by SetPresence, or
// through the TTL sweeper when a client vanishes without a close.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/wayfarelabs/wayfare/internal/metrics"
	"github.com/wayfarelabs/wayfare/internal/models"
)

// StatusStore is the narrow store contract the channel runs on. RedisStore
// implements it; tests use an in-memory fake.
type StatusStore interface {
	SetUserStatus(ctx context.Context, status models.UserStatus, ttl time.Duration) error
	GetUserStatuses(ctx context.Context, userIDs []string) (map[string]models.UserStatus, error)
	SubscribeStatusEvents(ctx context.Context) (<-chan models.UserStatus, func(), error)
	SweepExpired(ctx context.Context, now int64) (int, error)
}

// UnsubscribeFunc tears down a status subscription. Safe to call more
// than once.
type UnsubscribeFunc func()

// DisconnectFunc is the server-side action registered by SetPresence. It
// marks the user offline and runs at most once, no matter how many times
// it is invoked.
type DisconnectFunc func()

// Channel is the presence channel.
type Channel struct {
	store StatusStore
	ttl   time.Duration
	now   func() int64
}

// NewChannel creates a presence channel. ttl bounds how long a user stays
// online without a heartbeat.
func NewChannel(store StatusStore, ttl time.Duration) *Channel {
	return &Channel{
		store: store,
		ttl:   ttl,
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// SetPresence marks the user online with lastSeen=now and registers the
// on-disconnect action: the returned func sets the user offline without
// any further client participation. Callers hold it for the lifetime of
// the client's connection and invoke it when the connection ends, however
// it ends.
func (c *Channel) SetPresence(ctx context.Context, userID string) (DisconnectFunc, error) {
	if err := c.SetStatus(ctx, models.UserStatus{UserID: userID, Online: true, LastSeen: c.now()}); err != nil {
		return nil, err
	}

	var once sync.Once
	disconnect := func() {
		once.Do(func() {
			// The connection is gone; use a fresh context so the offline
			// write still lands.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.SetStatus(ctx, models.UserStatus{UserID: userID, Online: false, LastSeen: c.now()})
		})
	}
	return disconnect, nil
}

// SetStatus explicitly sets a user's status. Used directly for app
// foreground/background transitions.
func (c *Channel) SetStatus(ctx context.Context, status models.UserStatus) error {
	if err := c.store.SetUserStatus(ctx, status, c.ttl); err != nil {
		return err
	}
	if status.Online {
		metrics.PresenceTransitions.WithLabelValues("online").Inc()
	} else {
		metrics.PresenceTransitions.WithLabelValues("offline").Inc()
	}
	return nil
}

// Heartbeat refreshes a user's online deadline without a full status
// rewrite of lastSeen semantics: it is just SetStatus(online, now).
func (c *Channel) Heartbeat(ctx context.Context, userID string) error {
	return c.SetStatus(ctx, models.UserStatus{UserID: userID, Online: true, LastSeen: c.now()})
}

// IsOnline reports whether a user is currently online.
func (c *Channel) IsOnline(ctx context.Context, userID string) (bool, error) {
	statuses, err := c.store.GetUserStatuses(ctx, []string{userID})
	if err != nil {
		return false, err
	}
	return statuses[userID].Online, nil
}

// Statuses resolves the requested users to their current statuses,
// defaulting missing records to offline with lastSeen=0.
func (c *Channel) Statuses(ctx context.Context, userIDs []string) ([]models.UserStatus, error) {
	known, err := c.store.GetUserStatuses(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	out := make([]models.UserStatus, len(userIDs))
	for i, id := range userIDs {
		if status, ok := known[id]; ok {
			out[i] = status
		} else {
			out[i] = models.UserStatus{UserID: id, Online: false, LastSeen: 0}
		}
	}
	return out, nil
}

// SubscribeToStatus subscribes over the whole status namespace and maps
// every change down to the requested userIDs, delivering the full mapped
// list each time. One initial delivery happens on subscribe. The returned
// unsubscribe is idempotent.
func (c *Channel) SubscribeToStatus(ctx context.Context, userIDs []string, onChange func([]models.UserStatus)) (UnsubscribeFunc, error) {
	events, cancelEvents, err := c.store.SubscribeStatusEvents(ctx)
	if err != nil {
		return nil, err
	}

	watched := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		watched[id] = true
	}

	subCtx, cancelCtx := context.WithCancel(ctx)

	deliver := func() {
		statuses, err := c.Statuses(subCtx, userIDs)
		if err != nil {
			return
		}
		onChange(statuses)
	}

	go func() {
		deliver()
		for {
			select {
			case <-subCtx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				// The namespace carries everyone; only re-deliver when a
				// watched user changed.
				if watched[event.UserID] {
					deliver()
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancelEvents()
			cancelCtx()
		})
	}, nil
}

// RunSweeper periodically flips users whose online deadline lapsed to
// offline. Blocks until ctx is cancelled; run it on its own goroutine.
func (c *Channel) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := c.store.SweepExpired(ctx, c.now())
			if err == nil && swept > 0 {
				metrics.PresenceTransitions.WithLabelValues("offline").Add(float64(swept))
			}
		}
	}
}
