package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps each session as a hash under prefix+id. The key
// expires at the session's ExpiresAt, so Redis drops it without a sweeper.
type RedisRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRepository creates a Redis-based session repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisRepository{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisRepository) key(id string) string {
	return r.prefix + id
}

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	key := r.key(s.ID)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, toHash(s))
		p.PExpireAt(ctx, key, s.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Get returns nil when the session is missing or already expired.
func (r *RedisRepository) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	s, err := fromHash(id, fields)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	if s.Expired(r.now().UTC()) {
		_ = r.client.Del(ctx, r.key(id)).Err()
		return nil, nil
	}
	return s, nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

func toHash(s *Session) map[string]interface{} {
	return map[string]interface{}{
		"refreshToken": s.RefreshToken,
		"uid":          s.UID,
		"email":        s.Email,
		"createdAt":    s.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expiresAt":    s.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromHash(id string, f map[string]string) (*Session, error) {
	created, err := time.Parse(time.RFC3339Nano, f["createdAt"])
	if err != nil {
		return nil, fmt.Errorf("createdAt: %w", err)
	}
	expires, err := time.Parse(time.RFC3339Nano, f["expiresAt"])
	if err != nil {
		return nil, fmt.Errorf("expiresAt: %w", err)
	}
	return &Session{
		ID:           id,
		RefreshToken: f["refreshToken"],
		UID:          f["uid"],
		Email:        f["email"],
		CreatedAt:    created,
		ExpiresAt:    expires,
	}, nil
}
