package service

import (
	"context"
	"errors"
	"time"

	"videogate-backend/internal/common/logger"
	"videogate-backend/internal/features/catalog/models"
	"videogate-backend/internal/features/catalog/repository"
	usermodels "videogate-backend/internal/features/user/models"

	"github.com/google/uuid"
)

// SeenStore is the slice of the user ledger the premium cursor needs: the
// per-user dedup set for the current pass over the catalog.
type SeenStore interface {
	Seen(ctx context.Context, userID int64) (map[string]struct{}, error)
	ClearSeen(ctx context.Context, userID int64) error
}

// CatalogService selects the next item for a user and owns catalog ingestion.
type CatalogService interface {
	// Next picks the next deliverable item for the user, or nil when the
	// catalog holds nothing for them (empty, or drained for free tier).
	Next(ctx context.Context, user *usermodels.User) (*models.Video, error)
	Import(ctx context.Context, video *models.Video) (*models.Video, error)
	Latest(ctx context.Context, limit int) ([]*models.Video, error)
	Get(ctx context.Context, id string) (*models.Video, error)
	Count(ctx context.Context) (int64, error)
}

type catalogService struct {
	repo repository.VideoRepository
	seen SeenStore
}

func NewCatalogService(repo repository.VideoRepository, seen SeenStore) CatalogService {
	return &catalogService{repo: repo, seen: seen}
}

func (s *catalogService) Next(ctx context.Context, user *usermodels.User) (*models.Video, error) {
	if user.IsPremiumActive(time.Now()) {
		return s.nextUnseen(ctx, user.ID)
	}
	return s.atCursor(ctx, user.Cursor)
}

// atCursor is the free-tier rule: the item at the user's ordinal in
// ingestion order. Past the end means the catalog is drained for this user,
// which is a content condition, not a quota one.
func (s *catalogService) atCursor(ctx context.Context, cursor int) (*models.Video, error) {
	video, err := s.repo.ByIndex(ctx, cursor)
	if errors.Is(err, repository.ErrVideoNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return video, nil
}

// nextUnseen is the premium rule: first item in ingestion order not yet in
// the user's seen set. A fully seen catalog clears the set and starts the
// next pass, so premium users loop instead of stalling.
func (s *catalogService) nextUnseen(ctx context.Context, userID int64) (*models.Video, error) {
	ids, err := s.repo.IDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seen, err := s.seen.Seen(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			return s.repo.GetByID(ctx, id)
		}
	}

	// Full pass completed: wrap and retry once from the start.
	if err := s.seen.ClearSeen(ctx, userID); err != nil {
		return nil, err
	}
	logger.Debug().Int64("user_id", userID).Msg("Seen set cleared, catalog wrapped")
	return s.repo.GetByID(ctx, ids[0])
}

func (s *catalogService) Import(ctx context.Context, video *models.Video) (*models.Video, error) {
	if video.FileID == "" {
		return nil, errors.New("empty file id")
	}
	if video.ID == "" {
		video.ID = uuid.New().String()
	}
	if video.CreatedAt.IsZero() {
		video.CreatedAt = time.Now()
	}

	if err := s.repo.Add(ctx, video); err != nil {
		return nil, err
	}
	logger.Info().Str("video_id", video.ID).Str("file_id", video.FileID).Msg("Video imported")
	return video, nil
}

func (s *catalogService) Latest(ctx context.Context, limit int) ([]*models.Video, error) {
	return s.repo.Latest(ctx, limit)
}

func (s *catalogService) Get(ctx context.Context, id string) (*models.Video, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *catalogService) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
