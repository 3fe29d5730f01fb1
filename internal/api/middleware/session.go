package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// SessionCookie names the cookie carrying the chat session id.
const SessionCookie = "aif-session-id"

type contextKey string

const sessionIDKey contextKey = "session_id"

// Session reads the chat session id from its cookie, minting a new one when
// the cookie is absent or empty. The id is echoed back in the cookie and
// stored in the request context.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			id = c.Value
		}
		if id == "" {
			id = uuid.NewString()
		}

		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionIDKey, id)))
	})
}

// GetSessionID returns the session id set by Session, or "".
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}
