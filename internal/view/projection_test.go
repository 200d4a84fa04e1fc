package view

import (
	"testing"

	"github.com/wayfarelabs/wayfare/internal/models"
	"github.com/wayfarelabs/wayfare/internal/syncer"
)

func testState() syncer.State {
	return syncer.State{
		Conversations: []models.Conversation{
			{
				ID:           "c-old",
				Participants: []string{"alice", "bob"},
				UpdatedAt:    100,
				UnreadCount:  0,
			},
			{
				ID:           "c-new",
				Participants: []string{"alice", "carol"},
				UpdatedAt:    200,
				UnreadCount:  3,
				LastMessage:  &models.Message{Text: "see you there", Timestamp: 200},
			},
		},
		Messages: map[string][]models.Message{
			"c-new": {
				{ID: "m2", Timestamp: 150, Text: "second"},
				{ID: "m1", Timestamp: 100, Text: "first"},
				{ID: "m3", Timestamp: 150, Text: "tied"},
			},
		},
		Statuses: map[string]models.UserStatus{
			"carol": {UserID: "carol", Online: true, LastSeen: 199},
		},
	}
}

func TestConversationListOrdersByActivity(t *testing.T) {
	items := ConversationList(testState(), "alice", nil)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "c-new" || items[1].ID != "c-old" {
		t.Fatalf("expected newest first, got [%s %s]", items[0].ID, items[1].ID)
	}
}

func TestConversationListResolvesCounterpart(t *testing.T) {
	users := map[string]models.User{
		"carol": {ID: "carol", Name: "Carol C"},
	}
	items := ConversationList(testState(), "alice", users)

	if items[0].CounterpartID != "carol" || items[0].CounterpartName != "Carol C" {
		t.Fatalf("unexpected counterpart: %+v", items[0])
	}
	if !items[0].Online {
		t.Fatal("expected carol online")
	}
	// bob is not in the directory; the raw ID stands in.
	if items[1].CounterpartName != "bob" {
		t.Fatalf("expected raw-id fallback, got %q", items[1].CounterpartName)
	}
	if items[1].Online {
		t.Fatal("unknown status should read offline")
	}
}

func TestConversationListBadge(t *testing.T) {
	items := ConversationList(testState(), "alice", nil)

	if items[0].Badge != "3" {
		t.Fatalf("expected badge \"3\", got %q", items[0].Badge)
	}
	if items[1].Badge != "" {
		t.Fatalf("zero unread must hide the badge, got %q", items[1].Badge)
	}
}

func TestConversationListLastMessagePreview(t *testing.T) {
	items := ConversationList(testState(), "alice", nil)

	if items[0].LastMessageText != "see you there" || items[0].LastMessageAt != 200 {
		t.Fatalf("unexpected preview: %+v", items[0])
	}
	if items[1].LastMessageText != "" {
		t.Fatal("conversation without messages should have an empty preview")
	}
}

func TestMessageListSortsOldestFirst(t *testing.T) {
	msgs := MessageList(testState(), "c-new")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m1" {
		t.Fatalf("expected m1 first, got %s", msgs[0].ID)
	}
	// Tie on timestamp breaks by ID.
	if msgs[1].ID != "m2" || msgs[2].ID != "m3" {
		t.Fatalf("unstable tie break: [%s %s]", msgs[1].ID, msgs[2].ID)
	}
}

func TestMessageListUnknownConversation(t *testing.T) {
	msgs := MessageList(testState(), "nope")
	if len(msgs) != 0 {
		t.Fatalf("expected empty list, got %d", len(msgs))
	}
}
