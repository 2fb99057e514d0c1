package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mind-engage/evaluator-portal/internal/adminapi"
	"github.com/mind-engage/evaluator-portal/internal/rbac"
)

// CookieName holds the portal session token between requests.
const CookieName = "auth_token"

// TokenFromRequest prefers the session cookie and falls back to an
// Authorization bearer header (scripts, tests).
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// SessionMiddleware rejects requests without a valid portal session and puts
// the session, its role and the upstream token into the request context.
func SessionMiddleware(iss *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := iss.Verify(TokenFromRequest(r), time.Now())
			if err != nil {
				msg := "missing session"
				switch {
				case errors.Is(err, ErrExpired):
					msg = "session expired"
				case errors.Is(err, ErrInvalid):
					msg = "invalid session"
				}
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized", "message": msg})
				return
			}
			ctx := WithSession(r.Context(), s)
			ctx = WithSubject(ctx, s.Owner)
			ctx = rbac.WithRole(ctx, s.Role)
			ctx = adminapi.WithToken(ctx, s.Token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
