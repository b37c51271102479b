// Package redis holds the Redis-backed state: the per-owner tag cache, the
// per-owner event sequence and the outbox dead-letter list.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTagsTTL bounds how long a cached tag list may be served.
	DefaultTagsTTL = 10 * time.Minute
	// DefaultDeadLetterMax caps the dead-letter list; the oldest entries are trimmed.
	DefaultDeadLetterMax = 10000
)

// Store handles Redis operations for caches, sequences and dead letters.
type Store struct {
	client        *redis.Client
	deadLetterMax int64
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client:        client,
		deadLetterMax: DefaultDeadLetterMax,
	}
}

// Client exposes the underlying client for pub/sub.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Ping reports whether Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
