package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"egyptoai/internal/domain"
)

// Verifier validates a bearer token and returns its user id.
type Verifier interface {
	Verify(token string) (string, error)
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireAuth rejects requests without a valid bearer token with 401.
func RequireAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r)
			if token == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			uid, err := v.Verify(token)
			if err != nil {
				msg := "invalid token"
				if domain.ErrorCodeOf(err) == domain.CodeTokenExpired {
					msg = "token expired"
				}
				unauthorized(w, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(domain.ContextWithUserID(r.Context(), uid)))
		})
	}
}

// OptionalAuth attaches the caller's identity when a valid token is present
// and otherwise continues anonymously.
func OptionalAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearer(r); token != "" {
				if uid, err := v.Verify(token); err == nil {
					r = r.WithContext(domain.ContextWithUserID(r.Context(), uid))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="egyptoai"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
