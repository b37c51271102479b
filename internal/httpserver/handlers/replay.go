package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

type replayResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

// Replay triggers a manual replay of dead-lettered events.
func Replay(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.ReplayTrigger == nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "replay is not configured")
			return
		}

		select {
		case d.ReplayTrigger <- struct{}{}:
			d.Logger.Info("manual outbox replay triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, replayResponse{Triggered: true, Message: "replay triggered"})
		default:
			d.Logger.Warn("outbox replay already pending",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusTooManyRequests, replayResponse{Triggered: false, Message: "replay already pending, please wait"})
		}
	}
}
