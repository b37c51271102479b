package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
)

// ErrCorruptDeadLetter marks an entry that was popped but could not be decoded.
var ErrCorruptDeadLetter = errors.New("corrupt dead letter")

// The list is pushed at the head and popped from the tail, so it drains in
// the order events failed.

// PushDeadLetter records an undelivered event and trims the list to its cap.
func (s *Store) PushDeadLetter(ctx context.Context, env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, DeadLettersKey(), data)
	pipe.LTrim(ctx, DeadLettersKey(), 0, s.deadLetterMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}
	return nil
}

// RequeueDeadLetter puts env back at the tail so the next pop returns it again.
func (s *Store) RequeueDeadLetter(ctx context.Context, env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := s.client.RPush(ctx, DeadLettersKey(), data).Err(); err != nil {
		return fmt.Errorf("failed to requeue dead letter: %w", err)
	}
	return nil
}

// PopDeadLetter removes and returns the oldest dead letter, or nil when the
// list is empty. Undecodable entries are dropped and reported as an error.
func (s *Store) PopDeadLetter(ctx context.Context) (*domain.Envelope, error) {
	data, err := s.client.RPop(ctx, DeadLettersKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop dead letter: %w", err)
	}

	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptDeadLetter, err)
	}
	return &env, nil
}

// DeadLetterCount returns the number of events waiting for replay.
func (s *Store) DeadLetterCount(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, DeadLettersKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return n, nil
}
