package repository

import (
	"context"
	"errors"

	"videogate-backend/internal/features/catalog/models"
)

var ErrVideoNotFound = errors.New("video not found")

// VideoRepository stores catalog items in stable ingestion order.
type VideoRepository interface {
	Add(ctx context.Context, video *models.Video) error
	GetByID(ctx context.Context, id string) (*models.Video, error)
	// ByIndex returns the item at the given ordinal, ErrVideoNotFound when
	// the ordinal is past the end of the catalog.
	ByIndex(ctx context.Context, index int) (*models.Video, error)
	// IDs returns all item ids in ingestion order.
	IDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
	// Latest returns up to limit most recently ingested items, newest first.
	Latest(ctx context.Context, limit int) ([]*models.Video, error)
}
