package chat

import (
	"context"
	"sync"
)

// MemoryNotifier is an in-process Notifier used when no Redis is
// configured (development single-instance mode) and in tests. Change
// signals only reach subscribers in the same process.
type MemoryNotifier struct {
	mu   sync.Mutex
	subs map[string]map[int]chan struct{}
	next int
}

// NewMemoryNotifier creates an in-process notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string]map[int]chan struct{})}
}

// PublishChange signals every subscriber of topic. Signals coalesce: a
// subscriber that already has one pending does not get another.
func (n *MemoryNotifier) PublishChange(_ context.Context, topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// SubscribeChanges registers a subscriber for topic. The returned cancel
// is idempotent.
func (n *MemoryNotifier) SubscribeChanges(_ context.Context, topic string) (<-chan struct{}, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs[topic] == nil {
		n.subs[topic] = make(map[int]chan struct{})
	}
	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	n.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs[topic], id)
			close(ch)
		})
	}
	return ch, cancel, nil
}
