package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/mw"
)

// DefaultMaxBodyBytes caps JSON request bodies.
const DefaultMaxBodyBytes = 64 << 10

func init() { Register("bookmarks", registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	guard := mw.Guard(d.Verifier, false, d.Logger)
	timeout := requestTimeout(d)

	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	addLimit := mw.RateLimit(mw.RateLimitConfig{
		Burst:        d.AddBurst,
		RefillPerMin: d.AddRatePerMin,
		MaxEntries:   10000,
		TrustProxy:   d.TrustProxy,
		KeyFunc:      mw.OwnerKey(d.TrustProxy),
	})

	r.With(guard, timeout).Get("/api/bookmarks", handlers.ListBookmarks(d))
	r.With(guard, addLimit, timeout, mw.MaxBody(maxBody)).Post("/api/bookmarks", handlers.AddBookmark(d))
	r.With(guard, timeout).Delete("/api/bookmarks/{id}", handlers.DeleteBookmark(d))
	r.With(guard, timeout).Get("/api/tags", handlers.Tags(d))

	// No request timeout: the stream lives until the client leaves.
	r.With(mw.Guard(d.Verifier, true, d.Logger)).Get("/api/bookmarks/events", handlers.Stream(d))
}

func requestTimeout(d deps.Deps) func(http.Handler) http.Handler {
	if d.RequestTimeout <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.Timeout(d.RequestTimeout)
}
