package crypto

import "github.com/google/uuid"

// NewConversationID returns a time-ordered UUID v7 string. Sorting
// conversation IDs lexicographically also sorts them by creation time.
func NewConversationID() string {
	return uuid.Must(uuid.NewV7()).String()
}
