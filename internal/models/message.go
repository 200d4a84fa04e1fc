package models

// Message represents a single chat message. Messages are immutable once
// created except for the Read flag.
type Message struct {
	ID             string `json:"id"` // ULID
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Text           string `json:"text"`
	Timestamp      int64  `json:"timestamp"` // Unix ms, server-assigned
	Read           bool   `json:"read"`
}
