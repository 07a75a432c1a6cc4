package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lanstar128/jjds-auth-service/internal/device"
	"github.com/lanstar128/jjds-auth-service/internal/session/domain"
)

const (
	redisIDPrefix   = "session:id:"
	redisPairPrefix = "session:pair:"
)

// upsertScript installs a new session and evicts the pair's prior one in a
// single atomic step; Redis executes scripts serially, so concurrent
// same-pair logins cannot both survive. Returns the evicted session id or
// false.
var upsertScript = redis.NewScript(`
local old = redis.call('GET', KEYS[1])
if old then
  redis.call('DEL', ARGV[1] .. old)
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[4])
redis.call('SET', ARGV[1] .. ARGV[2], ARGV[3], 'PX', ARGV[4])
if old then
  return old
end
return false
`)

// revokeScript deletes a session and, only if the pair pointer still names
// this session, the pointer too (it may already point at a successor).
var revokeScript = redis.NewScript(`
if redis.call('GET', KEYS[2]) == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
return redis.call('DEL', KEYS[1])
`)

// RedisStore persists sessions in Redis with the refresh TTL as key expiry,
// so expired sessions vanish without a reaper.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisPairKey(userID int64, class device.Class) string {
	return fmt.Sprintf("%s%d:%s", redisPairPrefix, userID, class)
}

func (r *RedisStore) Upsert(ctx context.Context, s *domain.Session) (string, error) {
	ttl := time.Until(s.RefreshExpiresAt)
	if ttl <= 0 {
		return "", fmt.Errorf("session store: refresh_expires_at must be in the future")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("session store: marshal: %w", err)
	}
	res, err := upsertScript.Run(ctx, r.client,
		[]string{redisPairKey(s.UserID, s.DeviceClass)},
		redisIDPrefix, s.ID, payload, ttl.Milliseconds(),
	).Result()
	if err != nil {
		return "", err
	}
	if evicted, ok := res.(string); ok {
		return evicted, nil
	}
	return "", nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	val, err := r.client.Get(ctx, redisIDPrefix+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("session store: unmarshal: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) IsValid(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, redisIDPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) Revoke(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil || s == nil {
		return err
	}
	return revokeScript.Run(ctx, r.client,
		[]string{redisIDPrefix + id, redisPairKey(s.UserID, s.DeviceClass)},
		id,
	).Err()
}

func (r *RedisStore) UpdateRefreshToken(ctx context.Context, id, refreshTokenHash string, expiresAt time.Time) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrNotFound
	}
	s.RefreshTokenHash = refreshTokenHash
	s.RefreshExpiresAt = expiresAt
	return r.write(ctx, s)
}

func (r *RedisStore) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	s, err := r.Get(ctx, id)
	if err != nil || s == nil {
		return err
	}
	t := at
	s.LastSeenAt = &t
	return r.write(ctx, s)
}

// write re-serializes an existing session and renews both keys to the
// session's refresh expiry.
func (r *RedisStore) write(ctx context.Context, s *domain.Session) error {
	ttl := time.Until(s.RefreshExpiresAt)
	if ttl <= 0 {
		return r.Revoke(ctx, s.ID)
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session store: marshal: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisIDPrefix+s.ID, payload, ttl)
	pipe.Expire(ctx, redisPairKey(s.UserID, s.DeviceClass), ttl)
	_, err = pipe.Exec(ctx)
	return err
}
