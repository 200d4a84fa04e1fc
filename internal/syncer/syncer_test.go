package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/wayfarelabs/wayfare/internal/chat"
	"github.com/wayfarelabs/wayfare/internal/models"
)

func conv(id string) models.Conversation {
	return models.Conversation{ID: id, Participants: []string{"alice", "bob"}}
}

func msg(id, convID string, read bool) models.Message {
	return models.Message{ID: id, ConversationID: convID, SenderID: "alice", Text: "hi", Read: read}
}

func convIDs(state State) []string {
	ids := make([]string, 0, len(state.Conversations))
	for _, c := range state.Conversations {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestFetchSeedsBeforeFirstSnapshot(t *testing.T) {
	s := New(nil)

	s.ApplyConversationFetch([]models.Conversation{conv("c1"), conv("c2")})

	got := convIDs(s.Snapshot())
	if len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Fatalf("expected seeded [c1 c2], got %v", got)
	}
}

func TestSnapshotReplacesFetchResult(t *testing.T) {
	s := New(nil)

	s.ApplyConversationFetch([]models.Conversation{conv("stale")})
	s.ApplyConversationSnapshot([]models.Conversation{conv("c1")})

	got := convIDs(s.Snapshot())
	if len(got) != 1 || got[0] != "c1" {
		t.Fatalf("snapshot should be authoritative, got %v", got)
	}
}

func TestLateFetchNeverRemoves(t *testing.T) {
	s := New(nil)

	s.ApplyConversationSnapshot([]models.Conversation{conv("c1"), conv("c2")})
	// A fetch issued before the snapshot can resolve after it with an
	// older, smaller set; it must only upsert.
	s.ApplyConversationFetch([]models.Conversation{conv("c1")})

	got := convIDs(s.Snapshot())
	if len(got) != 2 {
		t.Fatalf("late fetch removed conversations: %v", got)
	}
}

func TestReadStateIsMonotonic(t *testing.T) {
	s := New(nil)

	s.ApplyMessageSnapshot("c1", []models.Message{msg("m1", "c1", true)})
	// Stale fetch still carries Read=false for m1.
	s.ApplyMessageFetch("c1", []models.Message{msg("m1", "c1", false), msg("m2", "c1", false)})

	state := s.Snapshot()
	for _, m := range state.Messages["c1"] {
		if m.ID == "m1" && !m.Read {
			t.Fatal("m1 reverted to unread")
		}
		if m.ID == "m2" && m.Read {
			t.Fatal("m2 should still be unread")
		}
	}
	if len(state.Messages["c1"]) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(state.Messages["c1"]))
	}
}

func TestMessageSetsAreIndependentPerConversation(t *testing.T) {
	s := New(nil)

	s.ApplyMessageSnapshot("c1", []models.Message{msg("m1", "c1", false)})
	s.ApplyMessageFetch("c2", []models.Message{msg("m2", "c2", false)})
	// c2 never went live, so a second fetch reseeds it.
	s.ApplyMessageFetch("c2", []models.Message{msg("m3", "c2", false)})

	state := s.Snapshot()
	if len(state.Messages["c1"]) != 1 {
		t.Fatalf("c1 should be untouched, got %d messages", len(state.Messages["c1"]))
	}
	if len(state.Messages["c2"]) != 1 || state.Messages["c2"][0].ID != "m3" {
		t.Fatalf("pre-live refetch should reseed c2, got %+v", state.Messages["c2"])
	}
}

func TestApplyStatusesUpserts(t *testing.T) {
	s := New(nil)

	s.ApplyStatuses([]models.UserStatus{{UserID: "bob", Online: true, LastSeen: 1}})
	s.ApplyStatuses([]models.UserStatus{{UserID: "bob", Online: false, LastSeen: 2}})

	state := s.Snapshot()
	if state.Statuses["bob"].Online || state.Statuses["bob"].LastSeen != 2 {
		t.Fatalf("unexpected status: %+v", state.Statuses["bob"])
	}
}

func TestOnUpdateFiresPerMutation(t *testing.T) {
	var mu sync.Mutex
	updates := 0
	s := New(func() {
		mu.Lock()
		updates++
		mu.Unlock()
	})

	s.ApplyConversationFetch([]models.Conversation{conv("c1")})
	s.ApplyStatuses([]models.UserStatus{{UserID: "bob"}})

	mu.Lock()
	defer mu.Unlock()
	if updates != 2 {
		t.Fatalf("expected 2 updates, got %d", updates)
	}
}

type fakeConvSource struct {
	mu         sync.Mutex
	fetchCalls int
	fetchErrs  int
	fetched    []models.Conversation
	onChange   func([]models.Conversation)
}

func (f *fakeConvSource) FetchConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchCalls <= f.fetchErrs {
		return nil, errors.New("transient")
	}
	return f.fetched, nil
}

func (f *fakeConvSource) SubscribeToConversations(ctx context.Context, userID string, onChange func([]models.Conversation), onError func(error)) (chat.UnsubscribeFunc, error) {
	f.mu.Lock()
	f.onChange = onChange
	f.mu.Unlock()
	return func() {}, nil
}

func TestAttachConversationsFetchRetries(t *testing.T) {
	s := New(nil)
	source := &fakeConvSource{fetchErrs: 2, fetched: []models.Conversation{conv("c1")}}

	detach, err := s.AttachConversations(context.Background(), source, "alice", func(err error) {
		t.Errorf("unexpected error callback: %v", err)
	})
	if err != nil {
		t.Fatalf("AttachConversations failed: %v", err)
	}
	defer detach()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.Snapshot().Conversations) == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("fetch result never applied despite retries")
}

func TestAttachConversationsReportsExhaustedFetch(t *testing.T) {
	s := New(nil)
	source := &fakeConvSource{fetchErrs: 100}

	errs := make(chan error, 1)
	detach, err := s.AttachConversations(context.Background(), source, "alice", func(err error) {
		errs <- err
	})
	if err != nil {
		t.Fatalf("AttachConversations failed: %v", err)
	}
	defer detach()

	select {
	case <-errs:
	case <-time.After(10 * time.Second):
		t.Fatal("exhausted fetch never reported")
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	s := New(nil)
	source := &fakeConvSource{fetched: []models.Conversation{}}

	detach, err := s.AttachConversations(context.Background(), source, "alice", nil)
	if err != nil {
		t.Fatalf("AttachConversations failed: %v", err)
	}

	detach()
	detach()
}
