package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"parkinglot/backend/services/parking-service/internal/auth"
)

type contextKey string

const ownerIDKey contextKey = "ownerID"

// TokenValidator resolves a bearer token to its claims.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Auth validates bearer JWTs and stores the owner id in the request context.
func Auth(tokens TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			token, ok := auth.BearerToken(authHeader)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			claims, err := tokens.ValidateToken(token)
			if err != nil {
				logger.Debug("rejected token", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if claims.UserID == "" {
				writeError(w, http.StatusUnauthorized, "owner id not found")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), claims.UserID)))
		})
	}
}

// WithOwnerID returns a copy of ctx carrying ownerID.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// OwnerIDFromContext retrieves the authenticated owner id.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerIDKey).(string)
	return id, ok && id != ""
}
