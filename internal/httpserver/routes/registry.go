package routes

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type entry struct {
	name string
	reg  Registrar
	mws  []Middleware
}

var registry []entry

// Register adds a named group of routes with optional middlewares applied to
// all of them. Called from init; a duplicate name is a programming error.
func Register(name string, reg Registrar, mws ...Middleware) {
	for _, e := range registry {
		if e.name == name {
			panic(fmt.Sprintf("routes: %q registered twice", name))
		}
	}
	registry = append(registry, entry{name: name, reg: reg, mws: mws})
}

// Names lists registered groups in registration order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, e := range registry {
		names = append(names, e.name)
	}
	return names
}

// RegisterAll mounts every registered group on r. Called once from httpserver.NewRouter.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, e := range registry {
		d.Logger.Debugf("mounting route group %s", e.name)
		if len(e.mws) == 0 {
			e.reg(r, d)
			continue
		}
		r.Group(func(sub chi.Router) {
			sub.Use(e.mws...)
			e.reg(sub, d)
		})
	}
}
