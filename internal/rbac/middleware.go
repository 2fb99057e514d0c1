package rbac

import (
	"encoding/json"
	"net/http"
)

var defaultChecker = NewChecker(nil)

// Granted lists the permissions of role under the default policy.
func Granted(role string) []string { return defaultChecker.Granted(role) }

// Require lets the request through only when the caller's role holds every
// one of perms.
func Require(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !defaultChecker.Allows(role, perms...) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": "forbidden", "message": "Your role cannot do this."})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
