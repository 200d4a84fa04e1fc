package models

// TravelLog represents one journal entry: a photo, a place, a moment and
// some notes.
type TravelLog struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	ImageURL  string `json:"image_url"`
	Location  string `json:"location"`
	DateTime  int64  `json:"date_time"` // Unix ms, when the trip happened
	Details   string `json:"details"`
	CreatedAt int64  `json:"created_at"` // Unix ms
}
