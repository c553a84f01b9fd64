package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userKey contextKey = "authUser"

// OwnerHeader lets a client scope its lookups to one view or dialog so they can
// be canceled together.
const OwnerHeader = "x-owner-id"

// User represents an authenticated client.
type User struct {
	Sub        string
	ClientName string
}

// WithUser stores an authenticated user in the context.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, if present.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	user, ok := ctx.Value(userKey).(User)
	return user, ok
}

// Owner returns the lookup owner for a request: the x-owner-id header, or the
// authenticated subject when the header is absent.
func Owner(r *http.Request) string {
	if owner := strings.TrimSpace(r.Header.Get(OwnerHeader)); owner != "" {
		return owner
	}
	if user, ok := UserFromContext(r.Context()); ok {
		return user.Sub
	}
	return ""
}
