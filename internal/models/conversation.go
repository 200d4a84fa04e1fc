package models

import (
	"sort"
	"strings"
)

// Conversation represents a 1:1 chat thread between two users.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	LastMessage  *Message `json:"last_message,omitempty"`
	UnreadCount  int      `json:"unread_count"`
	CreatedAt    int64    `json:"created_at"` // Unix ms
	UpdatedAt    int64    `json:"updated_at"` // Unix ms
}

// PairKey returns the deterministic key for an unordered participant pair.
// Both orderings of the same two user ids produce the same key, which makes
// conversation creation idempotent at the store level.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the participant that is not selfID, or "" if selfID
// is not a participant.
func (c *Conversation) Counterpart(selfID string) string {
	for _, p := range c.Participants {
		if p != selfID {
			return p
		}
	}
	return ""
}
