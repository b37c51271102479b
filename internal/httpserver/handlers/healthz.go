package handlers

import (
	"net/http"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
)

type buildInfo struct {
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

type healthzResponse struct {
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	buildInfo
}

// Healthz reports liveness only; it never touches a backing service.
// Use Readyz to learn whether postgres and redis answer.
func Healthz(d deps.Deps) http.HandlerFunc {
	build := buildInfo{
		Version:   d.Version,
		Commit:    d.Commit,
		BuildDate: d.BuildDate,
		GoVersion: d.GoVersion,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthzResponse{
			Status:        "ok",
			StartedAt:     d.StartTime.UTC(),
			UptimeSeconds: d.Now().Sub(d.StartTime).Round(time.Second).Seconds(),
			buildInfo:     build,
		})
	}
}
