package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware authenticates each request and installs the identity in
// the request context. Paths under SkipPrefixes (health, metrics) pass
// through unauthenticated.
type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	SkipPrefixes  []string
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.SkipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		identity, err := m.Authenticator.Authenticate(r.Context(), r)
		if err != nil {
			reason := "invalid_credentials"
			if errors.Is(err, ErrUnauthenticated) {
				reason = "unauthenticated"
			}
			m.logDeny(r, reason, err)
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":      "unauthorized",
				"request_id": r.Header.Get("X-Request-Id"),
			})
			return
		}

		r = r.WithContext(ContextWithIdentity(r.Context(), identity))
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) logDeny(r *http.Request, reason string, err error) {
	if m.Logger == nil {
		return
	}
	m.Logger.Warn("auth deny",
		"reason", reason,
		"request_id", r.Header.Get("X-Request-Id"),
		"method", r.Method,
		"path", r.URL.Path,
		"error", err.Error(),
	)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}
