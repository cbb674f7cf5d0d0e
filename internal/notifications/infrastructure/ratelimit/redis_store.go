package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/choreminder/choreminder/internal/notifications/domain"
)

// Key retention. Hour buckets only matter within their hour; cooldown
// stamps are kept long enough to outlive any realistic CooldownMinutes.
const (
	bucketTTL   = 2 * time.Hour
	lastFireTTL = 7 * 24 * time.Hour
)

// RedisStore implements ThrottleStore on shared Redis counters so every
// worker process enforces the same per-recipient hourly limits.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func bucketRedisKey(recipientID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("nf:rl:%s:%s", recipientID, at.UTC().Format("2006010215"))
}

func lastFireRedisKey(ruleID, recipientID uuid.UUID) string {
	return fmt.Sprintf("nf:cd:%s:%s", ruleID, recipientID)
}

func (s *RedisStore) CountHour(ctx context.Context, recipientID uuid.UUID, at time.Time) (int, error) {
	n, err := s.client.Get(ctx, bucketRedisKey(recipientID, at)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read rate bucket: %w", err)
	}
	return n, nil
}

// Reserve increments the bucket and backs out when the increment pushed it
// over max. INCR is atomic, so two workers racing for the last slot cannot
// both win.
func (s *RedisStore) Reserve(ctx context.Context, recipientID uuid.UUID, at time.Time, max int) (bool, error) {
	key := bucketRedisKey(recipientID, at)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("reserve rate slot: %w", err)
	}
	if n == 1 {
		s.client.Expire(ctx, key, bucketTTL)
	}
	if max > 0 && n > int64(max) {
		if err := s.client.Decr(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("back out rate slot: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) Release(ctx context.Context, recipientID uuid.UUID, at time.Time) error {
	if err := s.client.Decr(ctx, bucketRedisKey(recipientID, at)).Err(); err != nil {
		return fmt.Errorf("release rate slot: %w", err)
	}
	return nil
}

func (s *RedisStore) LastFire(ctx context.Context, ruleID, recipientID uuid.UUID) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, lastFireRedisKey(ruleID, recipientID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read cooldown stamp: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cooldown stamp: %w", err)
	}
	return at, true, nil
}

func (s *RedisStore) RecordFire(ctx context.Context, ruleID, recipientID uuid.UUID, at time.Time) error {
	key := lastFireRedisKey(ruleID, recipientID)
	if err := s.client.Set(ctx, key, at.UTC().Format(time.RFC3339Nano), lastFireTTL).Err(); err != nil {
		return fmt.Errorf("record cooldown stamp: %w", err)
	}
	return nil
}

var _ domain.ThrottleStore = (*RedisStore)(nil)
