package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// SessionContextKey carries the session ID through the request context.
const SessionContextKey = contextKey("session")

// CookieName is the cookie holding the session ID.
const CookieName = "retouch_session"

// WithSession assigns every request a session ID: an existing cookie is
// reused, otherwise a fresh ID is issued and set. There is no authentication
// involved; the ID only scopes in-memory editing state to one browser.
// A cookie that does not parse as a UUID is discarded and reissued, so the
// IDs reaching session and store code are never attacker-shaped.
func WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(CookieName); err == nil && isValidSessionID(c.Value) {
			id = c.Value
		} else {
			id = uuid.New().String()
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isValidSessionID reports whether a cookie value is one of our issued IDs.
func isValidSessionID(value string) bool {
	if value == "" {
		return false
	}
	_, err := uuid.Parse(value)
	return err == nil
}

// SessionID extracts the session ID from a request context. The empty string
// means the request did not pass through WithSession.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionContextKey).(string)
	return id
}
