package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

const checkTimeout = 2 * time.Second

type readyzResponse struct {
	Ready    bool              `json:"ready"`
	Failures map[string]string `json:"failures,omitempty"`
}

// Readyz answers 200 when postgres and redis both answer a ping, 503 otherwise.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failures := make(map[string]string)
		for name, p := range map[string]deps.Pinger{"postgres": d.Postgres, "redis": d.Redis} {
			if err := ping(r.Context(), p); err != nil {
				failures[name] = err.Error()
				d.Logger.Warn("readiness check failed",
					logger.String("component", name),
					logger.Error(err))
			}
		}

		if len(failures) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Ready: false, Failures: failures})
			return
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
	}
}

type errNotConfigured struct{}

func (errNotConfigured) Error() string { return "not configured" }

func ping(ctx context.Context, p deps.Pinger) error {
	if p == nil {
		return errNotConfigured{}
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return p.Ping(ctx)
}
