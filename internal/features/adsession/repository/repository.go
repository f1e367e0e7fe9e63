package repository

import (
	"context"
	"errors"

	"videogate-backend/internal/features/adsession/models"
)

var ErrSessionNotFound = errors.New("ad session not found")

type SessionRepository interface {
	Create(ctx context.Context, session *models.AdSession) error
	GetByToken(ctx context.Context, token string) (*models.AdSession, error)

	// Complete flips pending → completed as one conditional store write.
	// It reports transitioned=true only for the single call that actually
	// performed the flip; every later call sees transitioned=false.
	// Unknown tokens return ErrSessionNotFound.
	Complete(ctx context.Context, token string) (transitioned bool, err error)

	// MarkClicked records the first redirect hit, best effort.
	MarkClicked(ctx context.Context, token string) error
}
