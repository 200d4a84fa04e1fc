package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wayfarelabs/wayfare/internal/models"
)

func statusMessage(t *testing.T, status models.UserStatus) *redis.Message {
	t.Helper()
	data, err := json.Marshal(status)
	if err != nil {
		t.Fatalf("marshal status: %v", err)
	}
	return &redis.Message{Payload: string(data)}
}

func TestForwardStatusEventsDecodesAndSkipsMalformed(t *testing.T) {
	in := make(chan *redis.Message, 3)
	out := make(chan models.UserStatus, 16)

	in <- statusMessage(t, models.UserStatus{UserID: "alice", Online: true, LastSeen: 1000})
	in <- &redis.Message{Payload: "not json"}
	in <- statusMessage(t, models.UserStatus{UserID: "alice", Online: false, LastSeen: 2000})
	close(in)

	forwardStatusEvents(in, out)

	first, ok := <-out
	if !ok || first.UserID != "alice" || !first.Online {
		t.Fatalf("first event = %+v (ok=%v), want alice online", first, ok)
	}
	second, ok := <-out
	if !ok || second.Online || second.LastSeen != 2000 {
		t.Fatalf("second event = %+v (ok=%v), want alice offline", second, ok)
	}
	if _, ok := <-out; ok {
		t.Fatal("expected out to be closed after in closes")
	}
}

func TestForwardStatusEventsNeverBlocksWithoutConsumer(t *testing.T) {
	in := make(chan *redis.Message)
	out := make(chan models.UserStatus, 16)

	done := make(chan struct{})
	go func() {
		forwardStatusEvents(in, out)
		close(done)
	}()

	// Nobody drains out, as after an unsubscribe. Far more events than
	// the buffer holds must still pass through without wedging the
	// forwarder.
	for i := 0; i < 64; i++ {
		in <- statusMessage(t, models.UserStatus{UserID: "alice", Online: i%2 == 0, LastSeen: int64(i)})
	}
	close(in)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder blocked on a full, undrained channel")
	}
}
