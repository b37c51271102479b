package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkvault/internal/broadcast"
	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	redisstore "github.com/MrSnakeDoc/linkvault/internal/store/redis"
)

type publishFunc func(ctx context.Context, owner uuid.UUID, ev domain.Event) (domain.Event, error)

func (f publishFunc) Publish(ctx context.Context, owner uuid.UUID, ev domain.Event) (domain.Event, error) {
	return f(ctx, owner, ev)
}

func setupStore(t *testing.T) (*redisstore.Store, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.NewStore(client), client, s
}

func deadLetter(t *testing.T, store *redisstore.Store, owner uuid.UUID, title string, seq int64) {
	t.Helper()
	ev := domain.Added(domain.Bookmark{ID: uuid.New(), OwnerID: owner, Title: title})
	ev.Seq = seq
	env := domain.Envelope{OwnerID: owner, Event: ev, Attempts: 3, FailedAt: time.Now()}
	if err := store.PushDeadLetter(context.Background(), env); err != nil {
		t.Fatalf("PushDeadLetter failed: %v", err)
	}
}

func count(t *testing.T, store *redisstore.Store) int64 {
	t.Helper()
	n, err := store.DeadLetterCount(context.Background())
	if err != nil {
		t.Fatalf("DeadLetterCount failed: %v", err)
	}
	return n
}

func TestOutboxReplayer_RepublishesInOrder(t *testing.T) {
	store, client, _ := setupStore(t)
	ctx := context.Background()
	owner := uuid.New()

	stream, err := broadcast.NewSubscriber(client, logger.Nop()).Subscribe(ctx, owner)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = stream.Close() }()

	deadLetter(t, store, owner, "first", 4)
	deadLetter(t, store, owner, "second", 5)

	r := NewOutboxReplayer(store, broadcast.NewRedisPublisher(client, store), logger.Nop(), time.Hour, 10, nil)
	n, err := r.Replay(ctx)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Replay() = %d, want 2", n)
	}
	if got := count(t, store); got != 0 {
		t.Errorf("dead letters left = %d, want 0", got)
	}

	for _, want := range []struct {
		title string
		seq   int64
	}{{"first", 4}, {"second", 5}} {
		select {
		case ev := <-stream.Events():
			if ev.Payload.Title != want.title || ev.Seq != want.seq {
				t.Errorf("got %s/%d, want %s/%d", ev.Payload.Title, ev.Seq, want.title, want.seq)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for replayed event")
		}
	}
}

func TestOutboxReplayer_FailureRequeuesAndStops(t *testing.T) {
	store, _, _ := setupStore(t)
	owner := uuid.New()
	deadLetter(t, store, owner, "first", 1)
	deadLetter(t, store, owner, "second", 2)

	calls := 0
	pub := publishFunc(func(_ context.Context, _ uuid.UUID, ev domain.Event) (domain.Event, error) {
		calls++
		return ev, errors.New("still down")
	})

	r := NewOutboxReplayer(store, pub, logger.Nop(), time.Hour, 10, nil)
	n, err := r.Replay(context.Background())
	if err == nil {
		t.Fatal("Replay should report the publish failure")
	}
	if n != 0 || calls != 1 {
		t.Errorf("replayed=%d calls=%d, want 0 and 1", n, calls)
	}
	if got := count(t, store); got != 2 {
		t.Fatalf("dead letters left = %d, want 2", got)
	}

	env, err := store.PopDeadLetter(context.Background())
	if err != nil {
		t.Fatalf("PopDeadLetter failed: %v", err)
	}
	if env.Event.Payload.Title != "first" {
		t.Errorf("head = %q, want first", env.Event.Payload.Title)
	}
	if env.Attempts != 4 || env.LastError != "still down" {
		t.Errorf("attempts=%d last_error=%q", env.Attempts, env.LastError)
	}
}

func TestOutboxReplayer_BatchLimit(t *testing.T) {
	store, _, _ := setupStore(t)
	owner := uuid.New()
	for i := 1; i <= 5; i++ {
		deadLetter(t, store, owner, "x", int64(i))
	}
	ok := publishFunc(func(_ context.Context, _ uuid.UUID, ev domain.Event) (domain.Event, error) { return ev, nil })

	r := NewOutboxReplayer(store, ok, logger.Nop(), time.Hour, 2, nil)
	n, err := r.Replay(context.Background())
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Replay() = %d, want 2", n)
	}
	if got := count(t, store); got != 3 {
		t.Errorf("dead letters left = %d, want 3", got)
	}
	if r.Replayed() != 2 {
		t.Errorf("Replayed() = %d, want 2", r.Replayed())
	}
}

func TestOutboxReplayer_SkipsCorruptEntries(t *testing.T) {
	store, _, s := setupStore(t)
	owner := uuid.New()
	if _, err := s.Lpush(redisstore.DeadLettersKey(), "garbage"); err != nil {
		t.Fatal(err)
	}
	deadLetter(t, store, owner, "good", 1)

	var got []string
	pub := publishFunc(func(_ context.Context, _ uuid.UUID, ev domain.Event) (domain.Event, error) {
		got = append(got, ev.Payload.Title)
		return ev, nil
	})

	r := NewOutboxReplayer(store, pub, logger.Nop(), time.Hour, 10, nil)
	if _, err := r.Replay(context.Background()); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(got) != 1 || got[0] != "good" {
		t.Errorf("published %v, want [good]", got)
	}
}

func TestOutboxReplayer_ManualTrigger(t *testing.T) {
	store, _, _ := setupStore(t)
	ok := publishFunc(func(_ context.Context, _ uuid.UUID, ev domain.Event) (domain.Event, error) { return ev, nil })
	trigger := make(chan struct{}, 1)

	r := NewOutboxReplayer(store, ok, logger.Nop(), time.Hour, 10, trigger)
	r.Start(context.Background())
	defer r.Stop()

	if r.LastRun().IsZero() {
		t.Error("Start should run once immediately")
	}

	deadLetter(t, store, uuid.New(), "late", 1)
	trigger <- struct{}{}

	deadline := time.Now().Add(2 * time.Second)
	for count(t, store) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("manual trigger did not replay")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOutboxReplayer_StopIsIdempotent(t *testing.T) {
	store, _, _ := setupStore(t)
	ok := publishFunc(func(_ context.Context, _ uuid.UUID, ev domain.Event) (domain.Event, error) { return ev, nil })

	r := NewOutboxReplayer(store, ok, logger.Nop(), 10*time.Millisecond, 10, nil)
	r.Start(context.Background())
	r.Stop()
	r.Stop()

	unstarted := NewOutboxReplayer(store, ok, logger.Nop(), time.Hour, 10, nil)
	unstarted.Stop()
}

func TestOutboxReplayer_ReplayedAddCannotUndoLaterDelete(t *testing.T) {
	store, client, _ := setupStore(t)
	ctx := context.Background()
	owner := uuid.New()
	b := domain.Bookmark{ID: uuid.New(), OwnerID: owner, Title: "x"}
	pub := broadcast.NewRedisPublisher(client, store)

	// Queue of one and no worker: the add overflows into the dead-letter list.
	n := broadcast.NewNotifier(pub, store, store, broadcast.NotifierOptions{QueueSize: 1}, logger.Nop())
	n.Notify(owner, domain.Added(domain.Bookmark{ID: uuid.New(), OwnerID: owner, Title: "filler"}))
	n.Notify(owner, domain.Added(b))
	n.Stop()
	if got := count(t, store); got != 1 {
		t.Fatalf("dead letters = %d, want 1", got)
	}

	del, err := pub.Publish(ctx, owner, domain.Deleted(b))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	tl := domain.NewTimeline([]domain.Bookmark{b})
	if !tl.Apply(del) {
		t.Fatal("delete should apply")
	}

	var replayed []domain.Event
	recording := publishFunc(func(ctx context.Context, owner uuid.UUID, ev domain.Event) (domain.Event, error) {
		out, err := pub.Publish(ctx, owner, ev)
		replayed = append(replayed, out)
		return out, err
	})
	r := NewOutboxReplayer(store, recording, logger.Nop(), time.Hour, 10, nil)
	if _, err := r.Replay(ctx); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(replayed) != 1 {
		t.Fatalf("replayed %d events, want 1", len(replayed))
	}

	add := replayed[0]
	if add.Seq == 0 || add.Seq >= del.Seq {
		t.Errorf("replayed add seq=%d, delete seq=%d: add must sort before the delete", add.Seq, del.Seq)
	}
	if tl.Apply(add) {
		t.Error("stale add applied after its delete")
	}
	if tl.Contains(b.ID) {
		t.Error("deleted bookmark came back")
	}
}

func TestOutboxReplayer_FailedReplayKeepsAssignedSequence(t *testing.T) {
	store, _, _ := setupStore(t)
	owner := uuid.New()
	deadLetter(t, store, owner, "unsequenced", 0)

	pub := publishFunc(func(_ context.Context, _ uuid.UUID, ev domain.Event) (domain.Event, error) {
		if ev.Seq == 0 {
			ev.Seq = 7
		}
		return ev, errors.New("still down")
	})

	r := NewOutboxReplayer(store, pub, logger.Nop(), time.Hour, 10, nil)
	if _, err := r.Replay(context.Background()); err == nil {
		t.Fatal("Replay should report the publish failure")
	}

	env, err := store.PopDeadLetter(context.Background())
	if err != nil {
		t.Fatalf("PopDeadLetter failed: %v", err)
	}
	if env.Event.Seq != 7 {
		t.Errorf("requeued seq = %d, want 7", env.Event.Seq)
	}
}
