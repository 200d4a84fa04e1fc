// Package view projects the sync mirror into display-ready lists:
// conversations newest-activity-first with counterpart identity, presence
// and unread badge resolved, and messages oldest-first. Projections are
// computed at call time from whatever the mirror currently holds.
package view

import (
	"sort"
	"strconv"

	"github.com/wayfarelabs/wayfare/internal/models"
	"github.com/wayfarelabs/wayfare/internal/syncer"
)

// ConversationItem is one row of the conversation list.
type ConversationItem struct {
	ID              string `json:"id"`
	CounterpartID   string `json:"counterpartId"`
	CounterpartName string `json:"counterpartName"`
	Online          bool   `json:"online"`
	LastMessageText string `json:"lastMessageText,omitempty"`
	LastMessageAt   int64  `json:"lastMessageAt,omitempty"`
	UnreadCount     int    `json:"unreadCount"`
	Badge           string `json:"badge,omitempty"`
	UpdatedAt       int64  `json:"updatedAt"`
}

// ConversationList projects the mirror's conversations for selfID,
// ordered by most recent activity. The counterpart's display name falls
// back to the raw user ID when the directory has no entry for them; the
// badge is empty at zero unread.
func ConversationList(state syncer.State, selfID string, users map[string]models.User) []ConversationItem {
	items := make([]ConversationItem, 0, len(state.Conversations))
	for _, conv := range state.Conversations {
		counterpartID := conv.Counterpart(selfID)

		item := ConversationItem{
			ID:              conv.ID,
			CounterpartID:   counterpartID,
			CounterpartName: counterpartID,
			UnreadCount:     conv.UnreadCount,
			UpdatedAt:       conv.UpdatedAt,
		}
		if user, ok := users[counterpartID]; ok && user.Name != "" {
			item.CounterpartName = user.Name
		}
		if status, ok := state.Statuses[counterpartID]; ok {
			item.Online = status.Online
		}
		if conv.LastMessage != nil {
			item.LastMessageText = conv.LastMessage.Text
			item.LastMessageAt = conv.LastMessage.Timestamp
		}
		if conv.UnreadCount > 0 {
			item.Badge = strconv.Itoa(conv.UnreadCount)
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].UpdatedAt != items[j].UpdatedAt {
			return items[i].UpdatedAt > items[j].UpdatedAt
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// MessageList projects one conversation's messages oldest-first, ties
// broken by message ID so the order is stable across projections.
func MessageList(state syncer.State, conversationID string) []models.Message {
	src := state.Messages[conversationID]
	msgs := make([]models.Message, len(src))
	copy(msgs, src)

	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs
}
