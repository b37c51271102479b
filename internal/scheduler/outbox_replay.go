package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/broadcast"
	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	redisstore "github.com/MrSnakeDoc/linkvault/internal/store/redis"
)

// DefaultReplayBatch is how many dead letters one run republishes at most.
const DefaultReplayBatch = 100

// DeadLetterQueue is the dead-letter list as the replayer sees it.
type DeadLetterQueue interface {
	PopDeadLetter(ctx context.Context) (*domain.Envelope, error)
	RequeueDeadLetter(ctx context.Context, env domain.Envelope) error
	DeadLetterCount(ctx context.Context) (int64, error)
}

// OutboxReplayer periodically republishes events the outbox dead-lettered.
type OutboxReplayer struct {
	queue         DeadLetterQueue
	pub           broadcast.Publisher
	logger        logger.Logger
	interval      time.Duration
	batch         int
	stopCh        chan struct{}
	done          chan struct{}
	stopOnce      sync.Once
	started       atomic.Bool
	manualTrigger chan struct{}

	lastRun  atomic.Int64
	replayed atomic.Uint64
}

// NewOutboxReplayer creates a new replayer. manualTrigger may be nil.
func NewOutboxReplayer(
	queue DeadLetterQueue,
	pub broadcast.Publisher,
	log logger.Logger,
	interval time.Duration,
	batch int,
	manualTrigger chan struct{},
) *OutboxReplayer {
	if batch <= 0 {
		batch = DefaultReplayBatch
	}
	return &OutboxReplayer{
		queue:         queue,
		pub:           pub,
		logger:        log,
		interval:      interval,
		batch:         batch,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start runs one replay immediately, then every interval and on each manual trigger.
func (r *OutboxReplayer) Start(ctx context.Context) {
	r.started.Store(true)
	r.runOnce(ctx, "startup")

	ticker := time.NewTicker(r.interval)
	go func() {
		defer close(r.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.runOnce(ctx, "tick")
			case <-r.manualTrigger:
				r.logger.Info("manual outbox replay triggered")
				r.runOnce(ctx, "manual")
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the replayer and waits for an in-flight run to finish.
func (r *OutboxReplayer) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.started.Load() {
			<-r.done
		}
	})
}

// LastRun is the completion time of the latest run, zero before the first.
func (r *OutboxReplayer) LastRun() time.Time {
	ns := r.lastRun.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Replayed is the total number of events republished since start.
func (r *OutboxReplayer) Replayed() uint64 {
	return r.replayed.Load()
}

func (r *OutboxReplayer) runOnce(ctx context.Context, reason string) {
	n, err := r.Replay(ctx)
	r.lastRun.Store(time.Now().UnixNano())
	if err != nil {
		r.logger.Warn("outbox replay stopped early",
			logger.String("reason", reason),
			logger.Int("replayed", n),
			logger.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("outbox replay done",
			logger.String("reason", reason),
			logger.Int("replayed", n))
	}
}

// Replay republishes up to one batch of dead letters, oldest first. Events
// keep the sequence they were stamped with; one that was never sequenced
// keeps the sequence its first replay attempt assigned. On the first publish
// failure the envelope goes back to the front of the list and the run ends.
func (r *OutboxReplayer) Replay(ctx context.Context) (int, error) {
	replayed := 0
	for i := 0; i < r.batch; i++ {
		env, err := r.queue.PopDeadLetter(ctx)
		if errors.Is(err, redisstore.ErrCorruptDeadLetter) {
			r.logger.Warn("discarding corrupt dead letter", logger.Error(err))
			continue
		}
		if err != nil {
			return replayed, fmt.Errorf("pop dead letter: %w", err)
		}
		if env == nil {
			return replayed, nil
		}

		stamped, err := r.pub.Publish(ctx, env.OwnerID, env.Event)
		if stamped.Seq != 0 {
			env.Event.Seq = stamped.Seq
		}
		if err != nil {
			env.Attempts++
			env.LastError = err.Error()
			env.FailedAt = time.Now().UTC()
			if rerr := r.queue.RequeueDeadLetter(ctx, *env); rerr != nil {
				r.logger.Error("event lost, requeue failed",
					logger.String("owner_id", env.OwnerID.String()),
					logger.String("event", string(env.Event.Kind)),
					logger.Error(rerr))
			}
			return replayed, fmt.Errorf("republish: %w", err)
		}
		replayed++
		r.replayed.Add(1)
	}
	return replayed, nil
}
