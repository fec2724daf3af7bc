// file: handler/auth_middleware.go

package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/themidix/GlucoCheckWebAPIv4/common"
	"github.com/themidix/GlucoCheckWebAPIv4/logger"
	"github.com/themidix/GlucoCheckWebAPIv4/model"
	"github.com/themidix/GlucoCheckWebAPIv4/service"
)

type contextKey string

const (
	UserIDKey   contextKey = "userID"
	UserRoleKey contextKey = "userRole"
	IdentityKey contextKey = "identity"
)

// Authenticator resolves a bearer token into the caller's identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Identity, error)
}

// AuthMiddleware guards next with the bearer token found in the Authorization header.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				common.NewAppError(http.StatusForbidden, "Authorization header is required", nil).Send(w)
				return
			}

			headerParts := strings.SplitN(authHeader, " ", 2)
			if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "bearer") {
				common.NewAppError(http.StatusForbidden, "Invalid authorization header format", nil).Send(w)
				return
			}

			tokenString := strings.TrimSpace(headerParts[1])
			identity, err := auth.Authenticate(r.Context(), tokenString)
			if err != nil {
				guardError(err).Send(w)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			ctx = context.WithValue(ctx, UserIDKey, identity.User.ID)
			ctx = context.WithValue(ctx, UserRoleKey, identity.User.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func guardError(err error) *common.AppError {
	switch {
	case errors.Is(err, service.ErrMissingToken):
		return common.NewAppError(http.StatusForbidden, "Token is missing", nil)
	case errors.Is(err, service.ErrTokenRevoked):
		return common.NewAppError(http.StatusUnauthorized, "Token has been revoked", nil)
	case errors.Is(err, service.ErrTokenExpired):
		return common.NewAppError(http.StatusUnauthorized, "Token has expired", nil)
	case errors.Is(err, service.ErrTokenInvalid):
		return common.NewAppError(http.StatusForbidden, "Invalid token", err)
	case errors.Is(err, service.ErrUserNotFound):
		return common.NewAppError(http.StatusNotFound, "User not found", nil)
	default:
		return common.NewAppError(http.StatusInternalServerError, "Could not authenticate request", err)
	}
}

// AdminMiddleware must run after AuthMiddleware.
func AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || !(identity.User.IsAdmin || identity.User.Role == string(model.RoleAdmin)) {
			if ok {
				logger.Log.WithFields(logrus.Fields{
					"user_id": identity.User.ID,
					"path":    r.URL.Path,
				}).Warn("Non-admin user attempted to reach an admin route")
			}
			common.NewAppError(http.StatusForbidden, "Access denied. Admin privileges required.", nil).Send(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext returns the identity stored by AuthMiddleware.
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*model.Identity)
	return identity, ok && identity != nil && identity.User != nil
}
