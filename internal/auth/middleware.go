package auth

import (
	"net/http"
	"strings"

	"github.com/vamojunto/nfce-tracker/internal/common"
)

// Middleware returns a chi-compatible middleware that requires a valid
// Bearer token and stashes the authenticated user id in the request
// context for handlers to read via common.UserIDFromContext.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}

			userID, err := ValidateToken(secret, token)
			if err != nil {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), userID)))
		})
	}
}

// unauthorized writes a 401 in the same error envelope the rest of the
// API uses, so clients can rely on one schema.
func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"reason":"unauthorized","message":"missing or invalid bearer token"}}`))
}
