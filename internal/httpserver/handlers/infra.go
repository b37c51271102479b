package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/broadcast"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
)

type componentStatus struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode,omitempty"`
	Impact string `json:"impact,omitempty"`
	Error  string `json:"error,omitempty"`
}

type outboxStatus struct {
	broadcast.Stats
	DeadLetterDepth *int64 `json:"dead_letter_depth,omitempty"`
	LastReplay      string `json:"last_replay"`
	Replayed        uint64 `json:"replayed"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
	Outbox     outboxStatus               `json:"outbox"`
}

// Infra reports the state of every backing component and the outbox.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"postgres": checkPostgres(r.Context(), d),
			"redis":    checkRedis(r.Context(), d),
			"enrichment": {
				OK:   true,
				Mode: enrichmentMode(d.AIProvider),
			},
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
			Outbox:     outbox(r.Context(), d),
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	// Without postgres nothing can be saved or listed.
	if pg, exists := components["postgres"]; exists && !pg.OK {
		return "critical"
	}
	// Without redis writes still land but live updates and tag caching stop.
	if rd, exists := components["redis"]; exists && !rd.OK {
		return "degraded"
	}
	return "operational"
}

func enrichmentMode(provider string) string {
	if provider == "" || provider == "none" {
		return "fallback-only"
	}
	return provider + "+fallback"
}

func checkPostgres(ctx context.Context, d deps.Deps) componentStatus {
	if err := ping(ctx, d.Postgres); err != nil {
		return componentStatus{
			OK:     false,
			Impact: "bookmarks-unavailable",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true}
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if err := ping(ctx, d.Redis); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "live-updates-and-tag-cache-disabled",
			Error:  err.Error(),
		}
	}
	return componentStatus{
		OK:   true,
		Mode: "optimal",
	}
}

func outbox(ctx context.Context, d deps.Deps) outboxStatus {
	var s outboxStatus
	if d.Outbox != nil {
		s.Stats = d.Outbox.Stats()
	}

	s.LastReplay = "never"
	if d.Replay != nil {
		if last := d.Replay.LastRun(); !last.IsZero() {
			s.LastReplay = last.UTC().Format(time.RFC3339)
		}
		s.Replayed = d.Replay.Replayed()
	}

	if d.DeadLetters != nil {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if n, err := d.DeadLetters.DeadLetterCount(cctx); err == nil {
			s.DeadLetterDepth = &n
		}
	}
	return s
}
