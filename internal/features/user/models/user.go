package models

import "time"

// User is the per-user ledger record: quota counters, premium window and
// catalog progress. All mutations happen through conditional store updates.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	FreeUsed     int        `json:"free_used"`
	FreeLimit    int        `json:"free_limit"`
	PremiumUntil *time.Time `json:"premium_until,omitempty"`
	// Cursor is the catalog offset for free-tier selection.
	Cursor    int       `json:"cursor"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPremiumActive reports whether the premium window covers the given instant.
// An expired window is treated the same as no premium at all.
func (u *User) IsPremiumActive(now time.Time) bool {
	return u.PremiumUntil != nil && u.PremiumUntil.After(now)
}

// ConsumeResult is the outcome of a conditional free-unit increment.
type ConsumeResult struct {
	Granted  bool `json:"granted"`
	FreeUsed int  `json:"free_used"`
}
