package presence

import (
	"context"
	"sync"
	"time"

	"github.com/wayfarelabs/wayfare/internal/models"
)

// MemoryStore is an in-process StatusStore for development without Redis
// and for tests. Statuses live in a map; events fan out to subscribers on
// buffered channels, dropping when a subscriber lags.
type MemoryStore struct {
	mu        sync.Mutex
	statuses  map[string]models.UserStatus
	deadlines map[string]int64
	subs      map[int]chan models.UserStatus
	nextSub   int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses:  make(map[string]models.UserStatus),
		deadlines: make(map[string]int64),
		subs:      make(map[int]chan models.UserStatus),
	}
}

func (m *MemoryStore) SetUserStatus(ctx context.Context, status models.UserStatus, ttl time.Duration) error {
	m.mu.Lock()
	m.statuses[status.UserID] = status
	if status.Online {
		m.deadlines[status.UserID] = time.Now().UnixMilli() + ttl.Milliseconds()
	} else {
		delete(m.deadlines, status.UserID)
	}
	subs := make([]chan models.UserStatus, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- status:
		default:
		}
	}
	return nil
}

func (m *MemoryStore) GetUserStatuses(ctx context.Context, userIDs []string) (map[string]models.UserStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]models.UserStatus, len(userIDs))
	for _, id := range userIDs {
		if status, ok := m.statuses[id]; ok {
			out[id] = status
		}
	}
	return out, nil
}

func (m *MemoryStore) SubscribeStatusEvents(ctx context.Context) (<-chan models.UserStatus, func(), error) {
	ch := make(chan models.UserStatus, 16)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (m *MemoryStore) SweepExpired(ctx context.Context, now int64) (int, error) {
	m.mu.Lock()
	var expired []models.UserStatus
	for id, deadline := range m.deadlines {
		if deadline <= now {
			delete(m.deadlines, id)
			status := models.UserStatus{UserID: id, Online: false, LastSeen: now}
			m.statuses[id] = status
			expired = append(expired, status)
		}
	}
	subs := make([]chan models.UserStatus, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, status := range expired {
		for _, ch := range subs {
			select {
			case ch <- status:
			default:
			}
		}
	}
	return len(expired), nil
}
