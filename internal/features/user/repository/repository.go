package repository

import (
	"context"
	"errors"
	"time"

	"videogate-backend/internal/features/user/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	// Ensure creates the record if absent and returns the current state.
	// Existing progress is never overwritten; only the username is refreshed.
	Ensure(ctx context.Context, id int64, username string, freeLimit int) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// TryConsumeFreeUnit atomically increments free_used iff it is still
	// below free_limit. Two concurrent calls never both win the last unit.
	TryConsumeFreeUnit(ctx context.Context, id int64) (models.ConsumeResult, error)
	ResetFreeCycle(ctx context.Context, id int64) error

	AdvanceCursor(ctx context.Context, id int64) error
	MarkSeen(ctx context.Context, id int64, itemID string) error
	Seen(ctx context.Context, id int64) (map[string]struct{}, error)
	ClearSeen(ctx context.Context, id int64) error

	// SetPremiumUntil upserts the premium window (admin grants).
	SetPremiumUntil(ctx context.Context, id int64, until time.Time) error
}
