package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/mw"
)

func init() { Register("ops", registerOps) }

// registerOps mounts the operator endpoints. They carry no session; access is
// limited by caller address, and replay additionally by Host.
func registerOps(r chi.Router, d deps.Deps) {
	r.Group(func(r chi.Router) {
		r.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))

		r.Get("/healthz", handlers.Healthz(d))
		r.Get("/readyz", handlers.Readyz(d))
		r.Get("/infra", handlers.Infra(d))
		r.With(mw.EnforceHost(d.AllowedHosts, d.Logger)).Post("/replay", handlers.Replay(d))
	})
}
