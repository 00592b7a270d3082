package middleware

import (
	"context"
	"net/http"
	"strings"
)

// UserHeader carries the caller's id, set by the authenticating gateway.
const UserHeader = "X-User-ID"

type userKey struct{}

// RequireUser rejects requests without a caller id and stores it in the context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing " + UserHeader + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func UserFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}
