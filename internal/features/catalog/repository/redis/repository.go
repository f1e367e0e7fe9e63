package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"videogate-backend/internal/features/catalog/models"
	"videogate-backend/internal/features/catalog/repository"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefixVideo = "video:"
	keyVideoOrder  = "videos:order"
)

type videoRepository struct {
	client *redis.Client
}

func NewVideoRepository(client *redis.Client) repository.VideoRepository {
	return &videoRepository{client: client}
}

func makeVideoKey(id string) string {
	return keyPrefixVideo + id
}

func (r *videoRepository) Add(ctx context.Context, video *models.Video) error {
	data, err := json.Marshal(video)
	if err != nil {
		return fmt.Errorf("failed to marshal video: %w", err)
	}

	// The order list is the single source of ingestion ordering; the blob
	// and the list entry are written in one round trip.
	pipe := r.client.Pipeline()
	pipe.Set(ctx, makeVideoKey(video.ID), data, 0)
	pipe.RPush(ctx, keyVideoOrder, video.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *videoRepository) GetByID(ctx context.Context, id string) (*models.Video, error) {
	data, err := r.client.Get(ctx, makeVideoKey(id)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}

	var video models.Video
	if err := json.Unmarshal(data, &video); err != nil {
		return nil, err
	}
	return &video, nil
}

func (r *videoRepository) ByIndex(ctx context.Context, index int) (*models.Video, error) {
	id, err := r.client.LIndex(ctx, keyVideoOrder, int64(index)).Result()
	if err == redis.Nil {
		return nil, repository.ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *videoRepository) IDs(ctx context.Context) ([]string, error) {
	return r.client.LRange(ctx, keyVideoOrder, 0, -1).Result()
}

func (r *videoRepository) Count(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, keyVideoOrder).Result()
}

func (r *videoRepository) Latest(ctx context.Context, limit int) ([]*models.Video, error) {
	ids, err := r.client.LRange(ctx, keyVideoOrder, int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}

	videos := make([]*models.Video, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		video, err := r.GetByID(ctx, ids[i])
		if err != nil {
			continue
		}
		videos = append(videos, video)
	}
	return videos, nil
}
