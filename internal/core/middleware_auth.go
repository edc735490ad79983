package core

import (
	"net/http"
	"strings"

	"croplens/internal/types"
)

// authPublicPaths bypass API key authentication.
var authPublicPaths = map[string]struct{}{
	"/health": {},
}

// AuthMiddleware resolves the bearer API key into an actor and stores it in
// the request context. A nil Authenticator disables authentication entirely,
// which is the configuration used by handler unit tests.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		if _, public := authPublicPaths[r.URL.Path]; public {
			next.ServeHTTP(w, r)
			return
		}

		rawKey, err := extractBearerToken(r)
		if err != nil {
			s.Error(w, r, err)
			return
		}

		actor, err := s.Authenticator.Authenticate(r.Context(), rawKey)
		if err != nil {
			s.Error(w, r, err)
			return
		}

		ctx := types.WithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken pulls the credential from the Authorization header.
// The scheme comparison is case-insensitive per RFC 7235.
func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", types.NewAppError(types.ErrCodeAuthTokenMissing, "authorization header is required", nil)
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "authorization header must use the Bearer scheme", nil)
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", types.NewAppError(types.ErrCodeAuthTokenMissing, "bearer token is empty", nil)
	}
	return token, nil
}

// RequireScope guards a route subtree with a scope check. System actors
// bypass scope checks via Actor.HasScope.
func (s *Server) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := types.GetActor(r.Context())
			if !ok {
				s.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication is required", nil))
				return
			}

			if !actor.HasScope(scope) {
				s.Error(w, r, types.NewAppErrorWithDetails(
					types.ErrCodePermissionScope,
					"the API key does not grant the required scope",
					nil,
					map[string]any{"required_scope": scope},
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
