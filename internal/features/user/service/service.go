package service

import (
	"context"
	"time"

	"videogate-backend/internal/common/logger"
	"videogate-backend/internal/features/user/models"
	"videogate-backend/internal/features/user/repository"
)

// LedgerService owns every mutation of per-user quota, premium and progress
// state. Nothing outside this feature writes user records.
type LedgerService interface {
	Ensure(ctx context.Context, id int64, username string) (*models.User, error)
	Get(ctx context.Context, id int64) (*models.User, error)
	IsPremiumActive(user *models.User) bool
	TryConsumeFreeUnit(ctx context.Context, id int64) (models.ConsumeResult, error)
	ResetFreeCycle(ctx context.Context, id int64) error
	AdvanceCursor(ctx context.Context, id int64) error
	MarkSeen(ctx context.Context, id int64, itemID string) error
	GrantPremium(ctx context.Context, id int64, days int) (time.Time, error)
}

type ledgerService struct {
	repo      repository.UserRepository
	freeLimit int
	now       func() time.Time
}

func NewLedgerService(repo repository.UserRepository, freeLimit int) LedgerService {
	return &ledgerService{
		repo:      repo,
		freeLimit: freeLimit,
		now:       time.Now,
	}
}

func (s *ledgerService) Ensure(ctx context.Context, id int64, username string) (*models.User, error) {
	return s.repo.Ensure(ctx, id, username, s.freeLimit)
}

func (s *ledgerService) Get(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ledgerService) IsPremiumActive(user *models.User) bool {
	return user.IsPremiumActive(s.now())
}

func (s *ledgerService) TryConsumeFreeUnit(ctx context.Context, id int64) (models.ConsumeResult, error) {
	res, err := s.repo.TryConsumeFreeUnit(ctx, id)
	if err != nil {
		return models.ConsumeResult{}, err
	}
	if !res.Granted {
		logger.Debug().Int64("user_id", id).Int("free_used", res.FreeUsed).Msg("Free quota exhausted")
	}
	return res, nil
}

func (s *ledgerService) ResetFreeCycle(ctx context.Context, id int64) error {
	if err := s.repo.ResetFreeCycle(ctx, id); err != nil {
		return err
	}
	logger.Info().Int64("user_id", id).Msg("Free cycle reset")
	return nil
}

func (s *ledgerService) AdvanceCursor(ctx context.Context, id int64) error {
	return s.repo.AdvanceCursor(ctx, id)
}

func (s *ledgerService) MarkSeen(ctx context.Context, id int64, itemID string) error {
	return s.repo.MarkSeen(ctx, id, itemID)
}

func (s *ledgerService) GrantPremium(ctx context.Context, id int64, days int) (time.Time, error) {
	until := s.now().AddDate(0, 0, days)
	if err := s.repo.SetPremiumUntil(ctx, id, until); err != nil {
		return time.Time{}, err
	}
	logger.Info().Int64("user_id", id).Time("until", until).Msg("Premium granted")
	return until, nil
}
