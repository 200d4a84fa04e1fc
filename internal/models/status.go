package models

// UserStatus represents a user's online/offline presence. Exactly one
// status record exists per user; a missing record reads as offline.
type UserStatus struct {
	UserID   string `json:"user_id"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"last_seen"` // Unix ms
}
