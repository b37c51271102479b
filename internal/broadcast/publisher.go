// Package broadcast fans bookmark changes out to every live session of the
// same owner over Redis pub/sub. Delivery is best effort: nothing here can
// fail or undo a write that already happened.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
)

// ChannelPrefix is prepended to the owner id to name the owner's channel.
const ChannelPrefix = "bookmarks:"

// ChannelName returns the pub/sub channel carrying owner's events.
func ChannelName(owner uuid.UUID) string {
	return ChannelPrefix + owner.String()
}

// Publisher delivers one event to an owner's channel. The returned event
// carries the sequence that was stamped on it, even when delivery failed,
// so a retry keeps its place in the owner's order.
type Publisher interface {
	Publish(ctx context.Context, owner uuid.UUID, ev domain.Event) (domain.Event, error)
}

// Sequencer hands out per-owner, strictly increasing sequence numbers.
type Sequencer interface {
	NextSeq(ctx context.Context, owner uuid.UUID) (int64, error)
}

// RedisPublisher publishes JSON events with PUBLISH.
type RedisPublisher struct {
	client *redis.Client
	seq    Sequencer
}

// NewRedisPublisher builds a publisher. seq may be nil, in which case events
// go out unsequenced.
func NewRedisPublisher(client *redis.Client, seq Sequencer) *RedisPublisher {
	return &RedisPublisher{client: client, seq: seq}
}

func (p *RedisPublisher) Publish(ctx context.Context, owner uuid.UUID, ev domain.Event) (domain.Event, error) {
	if ev.Seq == 0 && p.seq != nil {
		n, err := p.seq.NextSeq(ctx, owner)
		if err != nil {
			return ev, fmt.Errorf("broadcast.Publish: sequence: %w", err)
		}
		ev.Seq = n
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return ev, fmt.Errorf("broadcast.Publish: marshal: %w", err)
	}
	if err := p.client.Publish(ctx, ChannelName(owner), data).Err(); err != nil {
		return ev, fmt.Errorf("broadcast.Publish: %w", err)
	}
	return ev, nil
}
