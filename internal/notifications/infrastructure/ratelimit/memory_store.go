package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/choreminder/choreminder/internal/notifications/domain"
)

// MemoryStore keeps hourly send counters and cooldown stamps in process
// memory. It backs local SQLite deployments and tests; multi-process
// deployments use RedisStore so sweeps on different workers see the same
// counters.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[bucketKey]int
	lastFires map[fireKey]time.Time
}

type bucketKey struct {
	recipientID uuid.UUID
	hour        int64
}

type fireKey struct {
	ruleID      uuid.UUID
	recipientID uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:   make(map[bucketKey]int),
		lastFires: make(map[fireKey]time.Time),
	}
}

func hourBucket(at time.Time) int64 {
	return at.UTC().Truncate(time.Hour).Unix()
}

func (s *MemoryStore) CountHour(_ context.Context, recipientID uuid.UUID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buckets[bucketKey{recipientID, hourBucket(at)}], nil
}

func (s *MemoryStore) Reserve(_ context.Context, recipientID uuid.UUID, at time.Time, max int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey{recipientID, hourBucket(at)}
	if max > 0 && s.buckets[key] >= max {
		return false, nil
	}
	s.buckets[key]++
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, recipientID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey{recipientID, hourBucket(at)}
	if s.buckets[key] > 0 {
		s.buckets[key]--
	}
	return nil
}

func (s *MemoryStore) LastFire(_ context.Context, ruleID, recipientID uuid.UUID) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.lastFires[fireKey{ruleID, recipientID}]
	return at, ok, nil
}

func (s *MemoryStore) RecordFire(_ context.Context, ruleID, recipientID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastFires[fireKey{ruleID, recipientID}] = at
	return nil
}

var _ domain.ThrottleStore = (*MemoryStore)(nil)
