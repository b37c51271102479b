package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/auth"
	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/utils"
)

// DefaultStreamHeartbeat keeps idle proxies from closing the stream.
const DefaultStreamHeartbeat = 25 * time.Second

// SnapshotEvent names the SSE event carrying the initial list.
const SnapshotEvent = "snapshot"

// Stream handles GET /api/bookmarks/events: a Server-Sent Events feed of the
// owner's changes. With ?snapshot=1 the current list is sent first so the
// client can seed its reducer. The subscription is opened before the
// snapshot is read; an add that lands in between arrives twice and the
// timeline folds it.
func Stream(d deps.Deps) http.HandlerFunc {
	heartbeat := d.StreamHeartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultStreamHeartbeat
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		owner, _ := auth.OwnerIDFromCtx(ctx)
		log := d.Logger.With(logger.String("owner_id", owner.String()))

		stream, err := d.Events.Subscribe(ctx, owner)
		if err != nil {
			log.Warn("event stream subscribe failed", logger.Error(err))
			writeError(w, http.StatusBadGateway, "upstream_failure", "live updates unavailable")
			return
		}
		defer utils.Close(stream)

		rc := http.NewResponseController(w)
		// Streams outlive the server's WriteTimeout.
		_ = rc.SetWriteDeadline(time.Time{})

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		var tl *domain.Timeline
		if r.URL.Query().Get("snapshot") == "1" {
			list, err := d.Bookmarks.GetBookmarks(ctx, owner, domain.ListFilter{})
			if err != nil {
				log.Warn("snapshot failed", logger.Error(err))
				list = []domain.Bookmark{}
			}
			tl = domain.NewTimeline(list)
			if err := writeSSE(w, SnapshotEvent, 0, tl.Items()); err != nil {
				return
			}
		} else {
			tl = domain.NewTimeline(nil)
		}
		if err := rc.Flush(); err != nil {
			log.Debug("event stream cannot flush", logger.Error(err))
			return
		}

		log.Debug("event stream opened")
		defer log.Debug("event stream closed")

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.Closing:
				return
			case ev, ok := <-stream.Events():
				if !ok {
					return
				}
				if !tl.Apply(ev) {
					log.Debug("dropping stale event",
						logger.String("event", string(ev.Kind)),
						logger.Int64("seq", ev.Seq))
					continue
				}
				if err := writeSSE(w, string(ev.Kind), ev.Seq, ev); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeSSE(w io.Writer, event string, id int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
