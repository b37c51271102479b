package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CachedTags returns the owner's cached tag list together with the cache
// generation it was read at. ok is false on a miss. gen is valid either way
// and is what a later CacheTags must present.
func (s *Store) CachedTags(ctx context.Context, owner uuid.UUID) (tags []string, gen int64, ok bool, err error) {
	vals, err := s.client.MGet(ctx, TagsKey(owner), TagsGenKey(owner)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to get cached tags: %w", err)
	}

	if raw, isSet := vals[1].(string); isSet {
		gen, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, 0, false, fmt.Errorf("corrupt tags generation %q: %w", raw, err)
		}
	}

	data, isSet := vals[0].(string)
	if !isSet {
		return nil, gen, false, nil
	}
	if err := json.Unmarshal([]byte(data), &tags); err != nil {
		// A corrupt entry is a miss; the caller recomputes and overwrites it.
		return nil, gen, false, nil
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, gen, true, nil
}

// CacheTags stores the owner's tag list for ttl, but only while the cache is
// still at generation gen. It reports whether the list was stored. A
// non-positive ttl uses DefaultTagsTTL.
func (s *Store) CacheTags(ctx context.Context, owner uuid.UUID, gen int64, tags []string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTagsTTL
	}
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return false, fmt.Errorf("failed to marshal tags: %w", err)
	}

	genKey := TagsGenKey(owner)
	stored := false
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		if _, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, TagsKey(owner), data, ttl)
			return nil
		}); err != nil {
			return err
		}
		stored = true
		return nil
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to cache tags: %w", err)
	}
	return stored, nil
}

// InvalidateTags drops the owner's cached tag list and advances its
// generation, so a list computed before this call can no longer be stored.
func (s *Store) InvalidateTags(ctx context.Context, owner uuid.UUID) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, TagsGenKey(owner))
		p.Del(ctx, TagsKey(owner))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate tags: %w", err)
	}
	return nil
}
