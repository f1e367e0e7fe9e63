package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"videogate-backend/internal/features/adsession/models"
	"videogate-backend/internal/features/adsession/repository"

	"github.com/redis/go-redis/v9"
)

const keyPrefixSession = "ad_session:"

// completeScript is the compare-and-set for the pending → completed
// transition. Provider retries and double clicks race on this; only one
// caller ever observes reply 1.
var completeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if redis.call("HGET", KEYS[1], "status") == "pending" then
	redis.call("HSET", KEYS[1], "status", "completed", "completed_at", ARGV[1])
	return 1
end
return 0
`)

// clickScript stamps clicked_at once, only for known tokens.
var clickScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSETNX", KEYS[1], "clicked_at", ARGV[1])
return 1
`)

type sessionRepository struct {
	client *redis.Client
}

func NewSessionRepository(client *redis.Client) repository.SessionRepository {
	return &sessionRepository{client: client}
}

func makeSessionKey(token string) string {
	return keyPrefixSession + token
}

func (r *sessionRepository) Create(ctx context.Context, session *models.AdSession) error {
	return r.client.HSet(ctx, makeSessionKey(session.Token),
		"token", session.Token,
		"user_id", session.UserID,
		"status", session.Status,
		"short_url", session.ShortURL,
		"verify_url", session.VerifyURL,
		"created_at", session.CreatedAt.Unix()).Err()
}

func (r *sessionRepository) GetByToken(ctx context.Context, token string) (*models.AdSession, error) {
	fields, err := r.client.HGetAll(ctx, makeSessionKey(token)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, repository.ErrSessionNotFound
	}
	return parseSession(fields)
}

func (r *sessionRepository) Complete(ctx context.Context, token string) (bool, error) {
	res, err := completeScript.Run(ctx, r.client,
		[]string{makeSessionKey(token)}, time.Now().Unix()).Int64()
	if err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}
	if res == -1 {
		return false, repository.ErrSessionNotFound
	}
	return res == 1, nil
}

func (r *sessionRepository) MarkClicked(ctx context.Context, token string) error {
	return clickScript.Run(ctx, r.client,
		[]string{makeSessionKey(token)}, time.Now().Unix()).Err()
}

func parseSession(fields map[string]string) (*models.AdSession, error) {
	userID, err := strconv.ParseInt(fields["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}

	session := &models.AdSession{
		Token:     fields["token"],
		UserID:    userID,
		Status:    fields["status"],
		ShortURL:  fields["short_url"],
		VerifyURL: fields["verify_url"],
	}

	if ts, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		session.CreatedAt = time.Unix(ts, 0)
	}
	if ts, err := strconv.ParseInt(fields["clicked_at"], 10, 64); err == nil {
		t := time.Unix(ts, 0)
		session.ClickedAt = &t
	}
	if ts, err := strconv.ParseInt(fields["completed_at"], 10, 64); err == nil {
		t := time.Unix(ts, 0)
		session.CompletedAt = &t
	}

	return session, nil
}
