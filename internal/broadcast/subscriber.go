package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// Stream is one session's view of its owner's channel.
type Stream interface {
	// Events is closed once the stream ends.
	Events() <-chan domain.Event
	Close() error
}

// Subscriber opens owner-scoped event streams.
type Subscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewSubscriber(client *redis.Client, log logger.Logger) *Subscriber {
	return &Subscriber{client: client, log: log}
}

// Subscribe joins owner's channel and returns once Redis has confirmed the
// subscription, so no event published afterwards is missed.
func (s *Subscriber) Subscribe(ctx context.Context, owner uuid.UUID) (Stream, error) {
	channel := ChannelName(owner)
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("broadcast.Subscribe: %w", err)
	}

	sub := &subscription{
		ps:      ps,
		events:  make(chan domain.Event, 16),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     s.log.With(logger.String("channel", channel)),
	}
	go sub.run(ctx)
	return sub, nil
}

type subscription struct {
	ps      *redis.PubSub
	events  chan domain.Event
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	log     logger.Logger
}

func (s *subscription) Events() <-chan domain.Event { return s.events }

// Close leaves the channel and waits for the reader goroutine to exit.
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		<-s.stopped
	})
	return err
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.stopped)
	defer close(s.events)

	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.log.Warn("skipping undecodable event", logger.Error(err))
				continue
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}
