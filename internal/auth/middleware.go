package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/strefethen/metalookup-go/internal/api"
	"github.com/strefethen/metalookup-go/internal/apperrors"
	"github.com/strefethen/metalookup-go/internal/config"
)

var publicRoutes = map[string]struct{}{
	"/v1/health":      {},
	"/v1/health/live": {},
}

// Websocket routes also accept the token as an access_token query parameter,
// since browsers cannot set headers on an upgrade request.
const (
	wsPrefix        = "/ws/"
	tokenQueryParam = "access_token"
	testModeHeader  = "x-test-mode"
)

var testUser = User{Sub: "test-client", ClientName: "Test Client"}

// Middleware rejects requests to non-public routes that lack a valid access
// token, and stores the token holder in the request context.
func Middleware(cfg config.Config) func(http.Handler) http.Handler {
	issuer := NewIssuer(cfg)
	testMode := cfg.AllowTestMode && cfg.AppEnv == "development"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			user, err := authenticate(r, issuer, testMode)
			if err != nil {
				api.WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// isPublicRoute ignores a trailing slash; StripSlashes only rewrites the routing
// path, not r.URL.Path.
func isPublicRoute(path string) bool {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	_, ok := publicRoutes[path]
	return ok
}

func authenticate(r *http.Request, issuer *Issuer, testMode bool) (User, error) {
	if testMode && r.Header.Get(testModeHeader) == "true" {
		return testUser, nil
	}

	token, err := requestToken(r)
	if err != nil {
		return User{}, err
	}

	payload, err := issuer.Verify(token)
	switch {
	case errors.Is(err, ErrTokenExpired):
		return User{}, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired)
	case err != nil:
		return User{}, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid)
	}
	return User{Sub: payload.Sub, ClientName: payload.ClientName}, nil
}

func requestToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return "", apperrors.NewUnauthorizedError("Invalid Authorization header format")
		}
		return token, nil
	}

	if strings.HasPrefix(r.URL.Path, wsPrefix) {
		if token := r.URL.Query().Get(tokenQueryParam); token != "" {
			return token, nil
		}
	}
	return "", apperrors.NewUnauthorizedError("Missing Authorization header")
}
