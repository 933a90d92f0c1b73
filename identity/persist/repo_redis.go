package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/redis/go-redis/v9"
)

var _ Repo = (*RedisRepo)(nil)

// RedisRepo stores sessions as JSON. Entries expire with the session's refresh
// horizon: sessions holding a refresh token are kept for refreshTTL, others
// expire together with their access token.
type RedisRepo struct {
	client     redis.UniversalClient
	prefix     string
	refreshTTL time.Duration
	nowTime    func() time.Time
}

type RedisOption func(*RedisRepo)

// WithPrefix sets the key prefix, "auth-session:" by default.
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRepo) {
		r.prefix = prefix
	}
}

// WithRefreshTTL sets how long sessions with a refresh token are retained.
func WithRefreshTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRepo) {
		r.refreshTTL = ttl
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) RedisOption {
	return func(r *RedisRepo) {
		r.nowTime = nowFunc
	}
}

// NewRedisRepo creates a Redis-backed session repository.
func NewRedisRepo(client redis.UniversalClient, options ...RedisOption) *RedisRepo {
	r := &RedisRepo{
		client:     client,
		prefix:     "auth-session:",
		refreshTTL: 30 * 24 * time.Hour,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *RedisRepo) key(key string) string {
	return r.prefix + key
}

func (r *RedisRepo) Load(ctx context.Context, key string) (*identity.Session, error) {
	if key == "" {
		return nil, fmt.Errorf("persist: key is required")
	}

	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: redis get: %w", err)
	}

	var s identity.Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("persist: failed to unmarshal: %w", err)
	}
	return &s, nil
}

func (r *RedisRepo) Save(ctx context.Context, key string, session *identity.Session) error {
	if key == "" {
		return fmt.Errorf("persist: key is required")
	}
	if session == nil {
		return fmt.Errorf("persist: session is required")
	}

	ttl := r.ttl(session)
	if ttl <= 0 {
		// Nothing usable left, don't resurrect it on the next load
		return r.Delete(ctx, key)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("persist: failed to marshal: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("persist: redis set: %w", err)
	}
	return nil
}

func (r *RedisRepo) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("persist: key is required")
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("persist: redis del: %w", err)
	}
	return nil
}

func (r *RedisRepo) ttl(session *identity.Session) time.Duration {
	if session.RefreshToken != "" {
		return r.refreshTTL
	}
	if session.ExpiresAt.IsZero() {
		return r.refreshTTL
	}
	return session.ExpiresAt.Sub(r.nowTime())
}
