package service

import (
	"context"
	"fmt"
	"time"

	"videogate-backend/internal/common/logger"
	"videogate-backend/internal/features/adsession/models"
	"videogate-backend/internal/features/adsession/repository"
	"videogate-backend/internal/platform/shortlink"

	"github.com/google/uuid"
)

// SessionService issues single-use verification tokens and records their
// pending → completed lifecycle.
type SessionService interface {
	// Create persists a pending session for the user. Provider failures do
	// not block creation: the session falls back to the direct verify URL
	// so the user always gets an actionable link.
	Create(ctx context.Context, userID int64) (*models.AdSession, error)
	// Complete is idempotent. alreadyCompleted reports whether some earlier
	// call had already performed the transition.
	Complete(ctx context.Context, token string) (alreadyCompleted bool, err error)
	// Status is a side-effect-free lookup, safe to poll.
	Status(ctx context.Context, token string) (*models.AdSession, error)
	MarkClicked(ctx context.Context, token string) error
}

type sessionService struct {
	repo     repository.SessionRepository
	provider shortlink.Client
	// domain is the public base URL for direct verification landings.
	domain string
}

func NewSessionService(repo repository.SessionRepository, provider shortlink.Client, domain string) SessionService {
	return &sessionService{repo: repo, provider: provider, domain: domain}
}

func (s *sessionService) Create(ctx context.Context, userID int64) (*models.AdSession, error) {
	token := uuid.New().String()
	verifyURL := fmt.Sprintf("%s/ad/return?token=%s&uid=%d", s.domain, token, userID)

	// Blocking provider I/O happens before any state is written, so a slow
	// or dead provider never holds store-side state hostage.
	shortURL, err := s.provider.Shorten(ctx, verifyURL)
	if err != nil {
		logger.Warn().Err(err).Int64("user_id", userID).Msg("Shortlink provider failed, using direct URL")
		shortURL = verifyURL
	}

	session := &models.AdSession{
		Token:     token,
		UserID:    userID,
		Status:    models.StatusPending,
		ShortURL:  shortURL,
		VerifyURL: verifyURL,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	logger.Info().Str("token", token).Int64("user_id", userID).Msg("Ad session created")
	return session, nil
}

func (s *sessionService) Complete(ctx context.Context, token string) (bool, error) {
	transitioned, err := s.repo.Complete(ctx, token)
	if err != nil {
		return false, err
	}
	if transitioned {
		logger.Info().Str("token", token).Msg("Ad session completed")
	}
	return !transitioned, nil
}

func (s *sessionService) Status(ctx context.Context, token string) (*models.AdSession, error) {
	return s.repo.GetByToken(ctx, token)
}

func (s *sessionService) MarkClicked(ctx context.Context, token string) error {
	return s.repo.MarkClicked(ctx, token)
}
