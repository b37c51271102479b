package deps

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/linkvault/internal/broadcast"
	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// Bookmarks is the use-case surface the API handlers drive.
type Bookmarks interface {
	AddBookmark(ctx context.Context, owner uuid.UUID, in domain.NewBookmark) (domain.Bookmark, error)
	GetBookmarks(ctx context.Context, owner uuid.UUID, filter domain.ListFilter) ([]domain.Bookmark, error)
	DeleteBookmark(ctx context.Context, owner uuid.UUID, id string) (domain.Bookmark, error)
	GetAllTags(ctx context.Context, owner uuid.UUID) ([]string, error)
}

// TokenVerifier resolves a session token to its owner.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// EventSource opens a live stream of an owner's events.
type EventSource interface {
	Subscribe(ctx context.Context, owner uuid.UUID) (broadcast.Stream, error)
}

// Pinger is anything readyz and infra can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OutboxStatus reports the outbox counters and dead-letter backlog.
type OutboxStatus interface {
	Stats() broadcast.Stats
}

// DeadLetterCounter reports how many events wait for replay.
type DeadLetterCounter interface {
	DeadLetterCount(ctx context.Context) (int64, error)
}

// ReplayStatus reports the replay scheduler's progress.
type ReplayStatus interface {
	LastRun() time.Time
	Replayed() uint64
}

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	TimeNow         func() time.Time  // for testing, defaults to time.Now
	AllowedHosts    []string          // Host headers allowed to reach the operator endpoints
	AllowedCIDRS    []string          // IPs allowed to reach healthz/readyz/infra/replay
	TrustProxy      bool              // true if running behind a trusted reverse proxy (e.g., cloudflared)
	CORSOrigins     []string          // browser origins allowed to call the API
	Bookmarks       Bookmarks         // bookmark use cases
	Verifier        TokenVerifier     // session token verifier
	Events          EventSource       // per-owner live events
	Postgres        Pinger            // relational store
	Redis           Pinger            // cache, pub/sub and dead letters
	Outbox          OutboxStatus      // async publisher counters
	DeadLetters     DeadLetterCounter // replay backlog
	Replay          ReplayStatus      // replay scheduler
	AIProvider      string            // enrichment provider name, "none" for fallback only
	RequestTimeout  time.Duration     // per-request deadline for the JSON API, 0 disables
	StreamHeartbeat time.Duration     // comment line interval on the event stream
	AddBurst        int               // add-bookmark burst per owner
	AddRatePerMin   int               // add-bookmark refill per owner per minute
	MaxBodyBytes    int64             // cap on JSON request bodies
	ReplayTrigger   chan struct{}     // Channel to trigger a manual outbox replay
	Closing         <-chan struct{}   // closed when the server starts shutting down
}

// Now returns d.TimeNow() or time.Now().
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
