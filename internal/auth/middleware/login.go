package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mind-engage/evaluator-portal/internal/adminapi"
	"github.com/mind-engage/evaluator-portal/internal/logging"
	"github.com/mind-engage/evaluator-portal/internal/rbac"
)

// Authenticator exchanges credentials for an upstream token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

type CookieOptions struct {
	Secure bool
	MaxAge time.Duration // defaults to the issuer TTL
}

const maxLoginBody = 16 << 10

// POST /api/auth/login  { "email": "...", "password": "..." }
func LoginHandler(a Authenticator, iss *Issuer, opts CookieOptions, defaultRole string) http.HandlerFunc {
	if opts.MaxAge <= 0 {
		opts.MaxAge = iss.TTL()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad json"})
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "email and password required"})
			return
		}

		tok, err := a.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
		if err != nil {
			status, msg := loginFailure(err)
			logging.Log.WithError(err).WithField("status", status).Info("auth: login refused")
			writeJSON(w, status, map[string]any{"ok": false, "error": msg})
			return
		}
		now := time.Now()
		s, err := UpstreamSession(tok, defaultRole, now)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "Invalid credentials"})
			return
		}
		signed, err := iss.Issue(s, now)
		if err != nil {
			logging.Log.WithError(err).Error("auth: sign session")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "could not start session"})
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    signed,
			Path:     "/",
			MaxAge:   int(opts.MaxAge / time.Second),
			HttpOnly: true,
			Secure:   opts.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "role": s.Role})
	}
}

func loginFailure(err error) (int, string) {
	var se *adminapi.StatusError
	switch {
	case errors.As(err, &se) && se.StatusCode < 500:
		return http.StatusUnauthorized, se.Message()
	case errors.Is(err, adminapi.ErrNoToken):
		return http.StatusUnauthorized, "Invalid credentials"
	case adminapi.IsUnavailable(err):
		return http.StatusBadGateway, "login service unavailable"
	}
	return http.StatusUnauthorized, "Invalid credentials"
}

// POST /api/auth/logout
func LogoutHandler(opts CookieOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   opts.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// GET /api/auth/session (behind SessionMiddleware)
func SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"owner":       s.Owner,
			"role":        s.Role,
			"expires_at":  s.ExpiresAt,
			"permissions": rbac.Granted(s.Role),
		})
	}
}
