package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/dropkiller/catalog-migration/internal/storeerr"
)

// RedisService implements Service against a real Redis (or
// Redis-protocol-compatible) server. Connection setup mirrors the
// ping-then-use pattern used for other backing stores in this codebase:
// fail fast at construction time rather than on first use.
type RedisService struct {
	client     *redis.Client
	maxRetries int
	retryDelay time.Duration
}

// NewRedisService parses redisURL, connects, and verifies connectivity
// with a bounded ping before returning.
func NewRedisService(redisURL string, maxRetries int, retryDelay time.Duration) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid coordination service URL: %v", storeerr.ErrConfiguration, err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: coordination service ping failed: %v", storeerr.ErrCoordinationUnavailable, err)
	}

	return &RedisService{client: client, maxRetries: maxRetries, retryDelay: retryDelay}, nil
}

func (s *RedisService) withRetry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), uint64(s.maxRetries)),
		ctx,
	)
	return backoff.Retry(func() error {
		if err := op(); err != nil {
			return fmt.Errorf("%w: %v", storeerr.ErrCoordinationUnavailable, err)
		}
		return nil
	}, b)
}

// AcquireLock implements Service.
func (s *RedisService) AcquireLock(ctx context.Context, key, value string, ttl int64) (bool, error) {
	var ok bool
	err := s.withRetry(ctx, func() error {
		var e error
		ok, e = s.client.SetNX(ctx, key, value, time.Duration(ttl)*time.Second).Result()
		return e
	})
	return ok, err
}

// RenewLock implements Service.
func (s *RedisService) RenewLock(ctx context.Context, key string, ttl int64) error {
	return s.withRetry(ctx, func() error {
		_, err := s.client.Expire(ctx, key, time.Duration(ttl)*time.Second).Result()
		return err
	})
}

// ReleaseLock implements Service.
func (s *RedisService) ReleaseLock(ctx context.Context, key string) error {
	return s.withRetry(ctx, func() error {
		return s.client.Del(ctx, key).Err()
	})
}

// LockExists implements Service.
func (s *RedisService) LockExists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := s.withRetry(ctx, func() error {
		var e error
		n, e = s.client.Exists(ctx, key).Result()
		return e
	})
	return n > 0, err
}

// HashSet implements Service.
func (s *RedisService) HashSet(ctx context.Context, key, field, value string) error {
	return s.withRetry(ctx, func() error {
		return s.client.HSet(ctx, key, field, value).Err()
	})
}

// HashGetAll implements Service.
func (s *RedisService) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	var result map[string]string
	err := s.withRetry(ctx, func() error {
		var e error
		result, e = s.client.HGetAll(ctx, key).Result()
		return e
	})
	return result, err
}

// HashLen implements Service.
func (s *RedisService) HashLen(ctx context.Context, key string) (int, error) {
	var n int64
	err := s.withRetry(ctx, func() error {
		var e error
		n, e = s.client.HLen(ctx, key).Result()
		return e
	})
	return int(n), err
}

// Delete implements Service.
func (s *RedisService) Delete(ctx context.Context, key string) error {
	return s.withRetry(ctx, func() error {
		return s.client.Del(ctx, key).Err()
	})
}

// Close implements Service.
func (s *RedisService) Close() error {
	return s.client.Close()
}
