package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Fact is one durable, user-confirmed personalization datum. Facts under the
// same key coexist; readers decide which one wins.
type Fact struct {
	ID      string    `json:"id"`
	Key     string    `json:"key"`
	Value   string    `json:"value"`
	Source  string    `json:"source"`
	AddedAt time.Time `json:"added_at"`
}

// Interaction is one finalized exchange, kept for offline review.
type Interaction struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	SessionKey string    `json:"session_key"`
	UserID     string    `json:"user_id"`
	UserQuery  string    `json:"user_query"`
	Reply      string    `json:"reply"`
	Intent     string    `json:"intent"`
	Status     string    `json:"status"`
	SourceIDs  string    `json:"source_ids"` // JSON array stored as text
}
