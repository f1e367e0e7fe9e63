package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"videogate-backend/internal/features/user/models"
	"videogate-backend/internal/features/user/repository"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefixUser = "user:"
	seenSuffix    = ":seen"
)

// ensureScript initializes every counter at most once and refreshes the
// username on later contacts. HSETNX per field also backfills records that
// were first touched by an admin grant before the user's first contact.
var ensureScript = redis.NewScript(`
redis.call("HSETNX", KEYS[1], "free_used", 0)
redis.call("HSETNX", KEYS[1], "free_limit", ARGV[2])
redis.call("HSETNX", KEYS[1], "premium_until", 0)
redis.call("HSETNX", KEYS[1], "cursor", 0)
redis.call("HSETNX", KEYS[1], "created_at", ARGV[3])
redis.call("HSET", KEYS[1], "username", ARGV[1], "updated_at", ARGV[3])
return 1
`)

// consumeScript is the single-write conditional increment backing the quota
// gate. The compare and the increment run inside one script call, so two
// concurrent requests can never both take the last free unit.
var consumeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return redis.error_reply("user missing")
end
local used = tonumber(redis.call("HGET", KEYS[1], "free_used") or "0")
local limit = tonumber(redis.call("HGET", KEYS[1], "free_limit") or "0")
if used < limit then
	used = redis.call("HINCRBY", KEYS[1], "free_used", 1)
	redis.call("HSET", KEYS[1], "updated_at", ARGV[1])
	return {1, used}
end
return {0, used}
`)

type userRepository struct {
	client *redis.Client
}

func NewUserRepository(client *redis.Client) repository.UserRepository {
	return &userRepository{client: client}
}

func makeUserKey(id int64) string {
	return keyPrefixUser + strconv.FormatInt(id, 10)
}

func makeSeenKey(id int64) string {
	return makeUserKey(id) + seenSuffix
}

func (r *userRepository) Ensure(ctx context.Context, id int64, username string, freeLimit int) (*models.User, error) {
	now := time.Now().Unix()
	if err := ensureScript.Run(ctx, r.client,
		[]string{makeUserKey(id)}, username, freeLimit, now).Err(); err != nil {
		return nil, fmt.Errorf("ensure user %d: %w", id, err)
	}
	return r.GetByID(ctx, id)
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	fields, err := r.client.HGetAll(ctx, makeUserKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, repository.ErrUserNotFound
	}
	return parseUser(id, fields)
}

func (r *userRepository) TryConsumeFreeUnit(ctx context.Context, id int64) (models.ConsumeResult, error) {
	vals, err := consumeScript.Run(ctx, r.client,
		[]string{makeUserKey(id)}, time.Now().Unix()).Int64Slice()
	if err != nil {
		return models.ConsumeResult{}, fmt.Errorf("consume free unit for user %d: %w", id, err)
	}
	if len(vals) != 2 {
		return models.ConsumeResult{}, fmt.Errorf("consume free unit: unexpected reply %v", vals)
	}
	return models.ConsumeResult{
		Granted:  vals[0] == 1,
		FreeUsed: int(vals[1]),
	}, nil
}

func (r *userRepository) ResetFreeCycle(ctx context.Context, id int64) error {
	return r.client.HSet(ctx, makeUserKey(id),
		"free_used", 0,
		"updated_at", time.Now().Unix()).Err()
}

func (r *userRepository) AdvanceCursor(ctx context.Context, id int64) error {
	return r.client.HIncrBy(ctx, makeUserKey(id), "cursor", 1).Err()
}

func (r *userRepository) MarkSeen(ctx context.Context, id int64, itemID string) error {
	return r.client.SAdd(ctx, makeSeenKey(id), itemID).Err()
}

func (r *userRepository) Seen(ctx context.Context, id int64) (map[string]struct{}, error) {
	members, err := r.client.SMembers(ctx, makeSeenKey(id)).Result()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		seen[m] = struct{}{}
	}
	return seen, nil
}

func (r *userRepository) ClearSeen(ctx context.Context, id int64) error {
	return r.client.Del(ctx, makeSeenKey(id)).Err()
}

func (r *userRepository) SetPremiumUntil(ctx context.Context, id int64, until time.Time) error {
	// Upsert: a grant may arrive before the user's first contact.
	return r.client.HSet(ctx, makeUserKey(id),
		"premium_until", until.Unix(),
		"updated_at", time.Now().Unix()).Err()
}

func parseUser(id int64, fields map[string]string) (*models.User, error) {
	user := &models.User{ID: id, Username: fields["username"]}

	var err error
	if user.FreeUsed, err = atoiField(fields, "free_used"); err != nil {
		return nil, fmt.Errorf("parse free_used: %w", err)
	}
	if user.FreeLimit, err = atoiField(fields, "free_limit"); err != nil {
		return nil, fmt.Errorf("parse free_limit: %w", err)
	}
	if user.Cursor, err = atoiField(fields, "cursor"); err != nil {
		return nil, fmt.Errorf("parse cursor: %w", err)
	}

	if ts, err := strconv.ParseInt(fields["premium_until"], 10, 64); err == nil && ts > 0 {
		t := time.Unix(ts, 0)
		user.PremiumUntil = &t
	}
	if ts, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		user.CreatedAt = time.Unix(ts, 0)
	}
	if ts, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		user.UpdatedAt = time.Unix(ts, 0)
	}

	return user, nil
}

// atoiField treats an absent field as zero; only malformed values error.
func atoiField(fields map[string]string, name string) (int, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
