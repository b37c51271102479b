package mw

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/linkvault/internal/auth"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// QueryTokenParam carries the session token for clients that cannot set
// headers, such as a browser EventSource.
const QueryTokenParam = "access_token"

// TokenVerifier resolves a session token to its owner.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// Guard rejects requests without a valid session token with 401 and puts the
// owner id in the request context for everything downstream. allowQuery also
// accepts the token from the access_token query parameter.
func Guard(v TokenVerifier, allowQuery bool, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" && allowQuery {
				token = r.URL.Query().Get(QueryTokenParam)
			}
			if token == "" {
				unauthorized(w)
				return
			}

			owner, err := v.Verify(token)
			if err != nil || owner == uuid.Nil {
				log.Debug("session rejected",
					logger.String("path", r.URL.Path),
					logger.Error(err))
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithOwnerID(r.Context(), owner)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="linkvault"`)
	reject(w, http.StatusUnauthorized, "unauthorized", "missing or invalid session")
}
