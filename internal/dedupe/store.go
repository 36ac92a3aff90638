// Package dedupe suppresses webhook redeliveries. Redis SETNX is the
// fast path; the durable processed-message table in Postgres backs it
// up when Redis is cold or unavailable.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jjtheshooterr/autobot/pkg/logging"
)

const defaultTTL = 24 * time.Hour

// DurableStore is the Postgres fallback layer.
type DurableStore interface {
	AlreadyProcessed(ctx context.Context, provider, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, messageID string) (bool, error)
}

// Store answers "have we seen this message id before" exactly once per id.
type Store struct {
	redis   *redis.Client
	durable DurableStore
	ttl     time.Duration
	logger  *logging.Logger
}

func NewStore(redisClient *redis.Client, durable DurableStore, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		redis:   redisClient,
		durable: durable,
		ttl:     defaultTTL,
		logger:  logger,
	}
}

// FirstDelivery returns true exactly once per (provider, messageID).
// Subsequent calls, including redeliveries after a crash, return false.
func (s *Store) FirstDelivery(ctx context.Context, provider, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}

	if s.redis != nil {
		key := fmt.Sprintf("dedupe:%s:%s", provider, messageID)
		set, err := s.redis.SetNX(ctx, key, 1, s.ttl).Result()
		if err != nil {
			s.logger.Warn("redis dedupe unavailable, falling back to durable store", "error", err)
		} else if !set {
			return false, nil
		}
	}

	if s.durable != nil {
		inserted, err := s.durable.MarkProcessed(ctx, provider, messageID)
		if err != nil {
			return false, fmt.Errorf("dedupe: durable mark: %w", err)
		}
		return inserted, nil
	}

	return true, nil
}
