package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"

	"checkout/pkg/log"
	"checkout/pkg/utils"
)

// Outcome result of a TryMark call
type Outcome int

const (
	// Fresh the event was never processed; the caller owns it now
	Fresh Outcome = iota
	// Duplicate the event was already marked; the caller must skip
	Duplicate
)

const (
	keyPrefix       = "idem:"
	bloomCapacity   = 1_000_000
	bloomFPRate     = 0.01
	localCacheBound = 10 * time.Minute
)

// Store records which event IDs a consumer group already processed.
// Redis SETNX is the authority; the bloom filter and local cache only
// short-circuit repeats without a round trip. A bloom hit alone is
// never trusted, a local cache hit is.
type Store struct {
	client redis.Cmdable
	ttl    time.Duration

	mu     sync.Mutex
	filter *bloom.BloomFilter
	local  *bigcache.BigCache
}

// NewStore creates an idempotency store. Marks expire after ttl, which
// must outlive the broker's redelivery window.
func NewStore(client redis.Cmdable, ttl time.Duration) (*Store, error) {
	localTTL := ttl
	if localTTL > localCacheBound {
		localTTL = localCacheBound
	}

	local, err := bigcache.New(context.Background(), bigcache.DefaultConfig(localTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to create local idempotency cache: %w", err)
	}

	return &Store{
		client: client,
		ttl:    ttl,
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPRate),
		local:  local,
	}, nil
}

// TryMark atomically claims the event for the given consumer group.
// Returns Fresh exactly once per (group, eventID) within the TTL; every
// later call returns Duplicate.
func (s *Store) TryMark(ctx context.Context, group, eventID string) (Outcome, error) {
	key := keyPrefix + group + ":" + eventID

	if s.seenLocally(key) {
		return Duplicate, nil
	}

	ok, err := s.client.SetNX(ctx, key, 1, s.ttl).Result()
	if err != nil {
		return Duplicate, utils.WrapError(err, utils.CodeRedisError, "failed to mark event")
	}

	s.remember(key)

	if !ok {
		log.WithFields(map[string]interface{}{
			"group":    group,
			"event_id": eventID,
		}).Debug("Duplicate event absorbed")
		return Duplicate, nil
	}
	return Fresh, nil
}

// Unmark removes a claim so a redelivery can retry the handler. Called
// when a handler fails after claiming its event.
func (s *Store) Unmark(ctx context.Context, group, eventID string) error {
	key := keyPrefix + group + ":" + eventID

	s.mu.Lock()
	s.local.Delete(key)
	s.mu.Unlock()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return utils.WrapError(err, utils.CodeRedisError, "failed to unmark event")
	}
	return nil
}

// seenLocally reports whether the key is certainly already marked.
func (s *Store) seenLocally(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.filter.TestString(key) {
		return false
	}
	_, err := s.local.Get(key)
	return err == nil
}

func (s *Store) remember(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filter.AddString(key)
	if err := s.local.Set(key, []byte{1}); err != nil {
		log.WithError(err).Warn("Failed to cache idempotency mark locally")
	}
}
