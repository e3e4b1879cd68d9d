package middleware

import (
	"net/http"
	"slices"
)

// RequireRoles must run after Guard. It passes requests whose token carries
// at least one of roles.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
				return
			}
			for _, role := range roles {
				if slices.Contains(res.Roles, role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, CodeForbidden, "forbidden")
		})
	}
}
