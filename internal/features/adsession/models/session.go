package models

import "time"

// Session status values. The only legal transition is pending → completed,
// performed exactly once.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// AdSession is a single-use ad verification record. The token is globally
// unique and belongs to exactly one user for its whole life.
type AdSession struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
	// ShortURL is what the user opens: the provider's shortened link, or
	// the direct verification URL when the provider was unusable.
	ShortURL string `json:"short_url"`
	// VerifyURL is the direct verification landing this session resolves to.
	VerifyURL   string     `json:"verify_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ClickedAt   *time.Time `json:"clicked_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *AdSession) Completed() bool {
	return s.Status == StatusCompleted
}
