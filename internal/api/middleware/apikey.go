package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// APIKeyAuth rejects requests without a configured API key. With no keys
// configured it lets everything through.
//
// A key is accepted from "Authorization: Bearer <key>" or "X-API-Key: <key>".
// Health, version and metrics endpoints are always public.
type APIKeyAuth struct {
	keys [][]byte
}

func NewAPIKeyAuth(keys []string) *APIKeyAuth {
	a := &APIKeyAuth{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	return a
}

func (a *APIKeyAuth) Enabled() bool { return len(a.keys) > 0 }

func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := extractAPIKey(r)
		if key == "" {
			respondUnauthorized(w, "API key required. Set Authorization: Bearer <key> or X-API-Key.")
			return
		}
		if !a.valid(key) {
			respondUnauthorized(w, "Invalid API key.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// valid compares against every key in constant time.
func (a *APIKeyAuth) valid(candidate string) bool {
	ok := 0
	for _, k := range a.keys {
		ok |= subtle.ConstantTimeCompare([]byte(candidate), k)
	}
	return ok == 1
}

func extractAPIKey(r *http.Request) string {
	if auth, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		return auth
	}
	return r.Header.Get("X-API-Key")
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/version", "/metrics":
		return true
	}
	return false
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="aifoundry"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
