// file: router/router.go

package router

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger/v2"
	_ "github.com/themidix/GlucoCheckWebAPIv4/docs"
	"github.com/themidix/GlucoCheckWebAPIv4/handler"
)

// NewRouter wires every route. A nil limiter disables rate limiting.
func NewRouter(authHandler *handler.AuthHandler, userHandler *handler.UserHandler, authenticator handler.Authenticator, limiter *handler.RateLimiter) http.Handler {
	mux := http.NewServeMux()

	protected := handler.AuthMiddleware(authenticator)
	admin := func(h http.Handler) http.Handler {
		return protected(handler.AdminMiddleware(h))
	}

	// Public
	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	mux.Handle("POST /register", limiter.Limit(handler.ErrorHandlingMiddleware(authHandler.Register)))
	mux.Handle("POST /login", limiter.Limit(handler.ErrorHandlingMiddleware(authHandler.Login)))
	mux.Handle("POST /refresh", limiter.Limit(handler.ErrorHandlingMiddleware(authHandler.Refresh)))
	mux.Handle("POST /forgot-password", limiter.Limit(handler.ErrorHandlingMiddleware(authHandler.ForgotPassword)))
	mux.Handle("POST /reset-password/{token}", limiter.Limit(handler.ErrorHandlingMiddleware(authHandler.ResetPassword)))

	// Authenticated
	mux.Handle("POST /logout", protected(handler.ErrorHandlingMiddleware(authHandler.Logout)))
	mux.Handle("GET /profile", protected(handler.ErrorHandlingMiddleware(authHandler.Profile)))
	mux.Handle("POST /profile/reset-password", protected(handler.ErrorHandlingMiddleware(authHandler.ResetPasswordFromProfile)))

	// Admin
	mux.Handle("GET /admin/users", admin(handler.ErrorHandlingMiddleware(userHandler.ListUsers)))
	mux.Handle("PATCH /admin/users/{id}/role", admin(handler.ErrorHandlingMiddleware(userHandler.UpdateUserRole)))

	return handler.RecoverMiddleware(handler.LoggingMiddleware(mux))
}
