// Package otpstore keeps one-time passcodes in Redis with a TTL.
package otpstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"egyptoai/internal/domain"
)

const keyPrefix = "otp:"

// RedisClient abstracts the Redis operations the store needs, so a real
// go-redis client or an in-memory fake can be used interchangeably.
type RedisClient interface {
	// Get returns ErrNil when the key does not exist.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// ErrNil is returned by RedisClient.Get for a missing key.
var ErrNil = goredis.Nil

// Store implements domain.OTPStore.
type Store struct {
	client RedisClient
	now    func() time.Time
}

var _ domain.OTPStore = (*Store)(nil)

// New returns a Store over client.
func New(client RedisClient) *Store {
	return &Store{client: client, now: time.Now}
}

func key(email string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) Put(ctx context.Context, email string, data domain.OTPData) error {
	ttl := data.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("put otp: %w: already expired", domain.ErrInvalidInput)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}
	if err := s.client.Set(ctx, key(email), string(raw), ttl); err != nil {
		return fmt.Errorf("put otp: %w: %w", domain.ErrOTPStoreFailure, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, email string) (*domain.OTPData, error) {
	raw, err := s.client.Get(ctx, key(email))
	if errors.Is(err, ErrNil) {
		return nil, domain.ErrOTPExpired
	}
	if err != nil {
		return nil, fmt.Errorf("get otp: %w: %w", domain.ErrOTPStoreFailure, err)
	}
	var data domain.OTPData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode otp: %w: %w", domain.ErrOTPStoreFailure, err)
	}
	// Redis expiry is second-granular; the record is authoritative.
	if !data.ExpiresAt.After(s.now()) {
		return nil, domain.ErrOTPExpired
	}
	return &data, nil
}

func (s *Store) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, key(email)); err != nil {
		return fmt.Errorf("delete otp: %w: %w", domain.ErrOTPStoreFailure, err)
	}
	return nil
}

// Ping checks Redis connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrOTPStoreFailure, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// redisAdapter wraps a go-redis client to implement RedisClient.
type redisAdapter struct {
	client *goredis.Client
}

// Dial parses url, connects and pings. The returned client is ready for New.
func Dial(ctx context.Context, url string) (RedisClient, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisAdapter{client: rdb}, nil
}

func (r *redisAdapter) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *redisAdapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisAdapter) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *redisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisAdapter) Close() error {
	return r.client.Close()
}
