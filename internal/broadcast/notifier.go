package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

var (
	errQueueFull = errors.New("outbox queue full")
	errStopped   = errors.New("outbox stopped")
)

// DeadLetters keeps events the outbox gave up on, for later replay.
type DeadLetters interface {
	PushDeadLetter(ctx context.Context, env domain.Envelope) error
}

// NotifierOptions tunes the outbox.
type NotifierOptions struct {
	QueueSize      int           // buffered events before Notify starts dropping
	MaxAttempts    int           // publish attempts per event, including the first
	RetryBackoff   time.Duration // wait before the first retry, doubled each time
	PublishTimeout time.Duration // per attempt
}

func (o NotifierOptions) withDefaults() NotifierOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 200 * time.Millisecond
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 2 * time.Second
	}
	return o
}

// Stats is a snapshot of the outbox counters.
type Stats struct {
	Enqueued     uint64 `json:"enqueued"`
	Published    uint64 `json:"published"`
	Retried      uint64 `json:"retried"`
	Failed       uint64 `json:"failed"`
	Dropped      uint64 `json:"dropped"`
	DeadLettered uint64 `json:"dead_lettered"`
	Pending      int    `json:"pending"`
}

type job struct {
	owner uuid.UUID
	ev    domain.Event
}

// Notifier is the asynchronous outbox between writes and the publisher.
// Events are sequenced when they are handed over, so an event keeps its
// place in the owner's order whether it is published, retried or replayed
// from the dead-letter list. A single worker drains the queue in FIFO order.
type Notifier struct {
	pub  Publisher
	seq  Sequencer
	dead DeadLetters
	log  logger.Logger
	opts NotifierOptions

	queue   chan job
	stopCh  chan struct{}
	done    chan struct{}
	spills  sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started atomic.Bool
	stop    sync.Once

	enqueued     atomic.Uint64
	published    atomic.Uint64
	retried      atomic.Uint64
	failed       atomic.Uint64
	dropped      atomic.Uint64
	deadLettered atomic.Uint64
}

// NewNotifier builds an outbox. seq may be nil, in which case the publisher
// sequences events when it first sends them.
func NewNotifier(pub Publisher, seq Sequencer, dead DeadLetters, opts NotifierOptions, log logger.Logger) *Notifier {
	opts = opts.withDefaults()
	return &Notifier{
		pub:    pub,
		seq:    seq,
		dead:   dead,
		log:    log,
		opts:   opts,
		queue:  make(chan job, opts.QueueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the worker. Calling it more than once has no effect.
func (n *Notifier) Start(ctx context.Context) {
	if !n.started.CompareAndSwap(false, true) {
		return
	}
	n.log.Info("outbox started",
		logger.Int("queue_size", n.opts.QueueSize),
		logger.Int("max_attempts", n.opts.MaxAttempts))
	go n.run(context.WithoutCancel(ctx))
}

// Stop refuses new events, delivers what is already queued and waits for
// the worker and any pending dead-letter writes to finish.
func (n *Notifier) Stop() {
	n.stop.Do(func() {
		n.mu.Lock()
		n.closed = true
		n.mu.Unlock()

		close(n.stopCh)
		if n.started.Load() {
			<-n.done
		}
		n.spills.Wait()
		n.log.Info("outbox stopped", logger.Any("stats", n.Stats()))
	})
}

// Notify stamps ev with the owner's next sequence and hands it to the
// worker without waiting for delivery. When the queue is full the event is
// written to the dead-letter list in the background. After Stop the event
// is dead-lettered before Notify returns.
func (n *Notifier) Notify(owner uuid.UUID, ev domain.Event) {
	ev = n.stamp(owner, ev)

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.dropped.Add(1)
		n.deadLetter(context.Background(), owner, ev, 0, errStopped)
		return
	}

	select {
	case n.queue <- job{owner: owner, ev: ev}:
		n.enqueued.Add(1)
	default:
		n.dropped.Add(1)
		n.log.Warn("outbox queue full, dead-lettering event",
			logger.String("owner_id", owner.String()),
			logger.String("event", string(ev.Kind)),
			logger.Int64("seq", ev.Seq))
		n.spills.Add(1)
		go func() {
			defer n.spills.Done()
			n.deadLetter(context.Background(), owner, ev, 0, errQueueFull)
		}()
	}
}

// stamp assigns the sequence once, at hand-over. On failure the event stays
// unsequenced and the publisher sequences it when it first goes out.
func (n *Notifier) stamp(owner uuid.UUID, ev domain.Event) domain.Event {
	if ev.Seq != 0 || n.seq == nil {
		return ev
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.opts.PublishTimeout)
	defer cancel()
	seq, err := n.seq.NextSeq(ctx, owner)
	if err != nil {
		n.log.Warn("failed to sequence event, publisher will sequence it",
			logger.String("owner_id", owner.String()),
			logger.String("event", string(ev.Kind)),
			logger.Error(err))
		return ev
	}
	ev.Seq = seq
	return ev
}

// Stats returns the current counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		Enqueued:     n.enqueued.Load(),
		Published:    n.published.Load(),
		Retried:      n.retried.Load(),
		Failed:       n.failed.Load(),
		Dropped:      n.dropped.Load(),
		DeadLettered: n.deadLettered.Load(),
		Pending:      len(n.queue),
	}
}

func (n *Notifier) run(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case <-n.stopCh:
			n.drain(ctx)
			return
		case j := <-n.queue:
			n.deliver(ctx, j)
		}
	}
}

func (n *Notifier) drain(ctx context.Context) {
	for {
		select {
		case j := <-n.queue:
			n.deliver(ctx, j)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, j job) {
	ev := j.ev
	wait := n.opts.RetryBackoff
	var lastErr error
	attempts := 0

	for attempts < n.opts.MaxAttempts {
		attempts++
		pctx, cancel := context.WithTimeout(ctx, n.opts.PublishTimeout)
		stamped, err := n.pub.Publish(pctx, j.owner, ev)
		cancel()
		if stamped.Seq != 0 {
			ev.Seq = stamped.Seq
		}
		if err == nil {
			n.published.Add(1)
			return
		}
		lastErr = err

		if attempts == n.opts.MaxAttempts || !n.pause(wait) {
			break
		}
		n.retried.Add(1)
		n.log.Warn("publish failed, retrying",
			logger.String("owner_id", j.owner.String()),
			logger.String("event", string(ev.Kind)),
			logger.Int("attempt", attempts),
			logger.Duration("next_retry_in", wait),
			logger.Error(err))
		wait *= 2
	}

	n.failed.Add(1)
	n.log.Error("publish failed, dead-lettering event",
		logger.String("owner_id", j.owner.String()),
		logger.String("event", string(ev.Kind)),
		logger.Int64("seq", ev.Seq),
		logger.Int("attempts", attempts),
		logger.Error(lastErr))
	n.deadLetter(ctx, j.owner, ev, attempts, lastErr)
}

// pause waits d and reports false when the outbox is stopping, in which
// case the caller dead-letters instead of retrying.
func (n *Notifier) pause(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-n.stopCh:
		return false
	}
}

func (n *Notifier) deadLetter(ctx context.Context, owner uuid.UUID, ev domain.Event, attempts int, cause error) {
	if n.dead == nil {
		n.log.Error("event lost, no dead-letter store",
			logger.String("owner_id", owner.String()),
			logger.String("event", string(ev.Kind)))
		return
	}

	env := domain.Envelope{
		OwnerID:  owner,
		Event:    ev,
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
	if cause != nil {
		env.LastError = cause.Error()
	}

	dctx, cancel := context.WithTimeout(ctx, n.opts.PublishTimeout)
	defer cancel()
	if err := n.dead.PushDeadLetter(dctx, env); err != nil {
		n.log.Error("event lost, dead-letter push failed",
			logger.String("owner_id", owner.String()),
			logger.String("event", string(ev.Kind)),
			logger.Error(err))
		return
	}
	n.deadLettered.Add(1)
}
