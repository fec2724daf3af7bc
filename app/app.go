// File: app/app.go
package app

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/themidix/GlucoCheckWebAPIv4/config"
	"github.com/themidix/GlucoCheckWebAPIv4/db"
	"github.com/themidix/GlucoCheckWebAPIv4/handler"
	"github.com/themidix/GlucoCheckWebAPIv4/logger"
	"github.com/themidix/GlucoCheckWebAPIv4/mailer"
	"github.com/themidix/GlucoCheckWebAPIv4/repository"
	"github.com/themidix/GlucoCheckWebAPIv4/router"
	"github.com/themidix/GlucoCheckWebAPIv4/service"
	"golang.org/x/crypto/bcrypt"
)

// Components are the collaborators the HTTP layer is built from.
type Components struct {
	Users   repository.IUserRepository
	Revoked service.RevocationRegistry
	Mailer  mailer.Mailer
	Hasher  service.PasswordHasher
	Now     func() time.Time
}

// AuthConfig translates the loaded configuration into the auth service's settings.
func AuthConfig(cfg *config.Config) service.AuthConfig {
	return service.AuthConfig{
		AccessSecret:         []byte(cfg.JWT.AccessSecret),
		RefreshSecret:        []byte(cfg.JWT.RefreshSecret),
		AccessTTL:            cfg.JWT.AccessTTL,
		RefreshTTL:           cfg.JWT.RefreshTTL,
		ResetTTL:             cfg.JWT.ResetTTL,
		ResetURL:             cfg.Auth.ResetURL,
		SingleUseResetTokens: cfg.Auth.SingleUseResetTokens,
	}
}

// NewHandler wires services, handlers and routes on top of c.
func NewHandler(cfg *config.Config, c Components) (http.Handler, *service.AuthService) {
	authService := service.NewAuthService(c.Users, c.Revoked, c.Mailer, c.Hasher, service.NewTokenCodec(c.Now), AuthConfig(cfg))
	userService := service.NewUserService(c.Users)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	limiter := handler.NewRateLimiter(cfg.RateLimit.PerMinute)

	return router.NewRouter(authHandler, userHandler, authService, limiter), authService
}

func Run() {
	logger.Init()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Error loading configuration: %v", err)
	}
	logger.SetLevel(cfg.Log.Level)
	logger.Log.Info("Configuration loaded successfully")

	ctx := context.Background()

	// --- Credential store ---
	var users repository.IUserRepository
	switch cfg.Database.Driver {
	case "memory":
		logger.Log.Warn("Using the in-memory user store; accounts are lost on restart")
		users = repository.NewMemoryUserRepository()
	default:
		if err := db.ApplyMigrations(cfg.Database.MigrationsPath, cfg.Database.URL()); err != nil {
			logger.Log.Fatalf("Error applying database migrations: %v", err)
		}
		database, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Log.Fatalf("Error connecting to the database: %v", err)
		}
		defer database.Close()
		users = repository.NewUserRepository(database)
	}

	// --- Revocation registry ---
	var revoked service.RevocationRegistry
	switch cfg.Revocation.Backend {
	case "redis":
		rdb, err := db.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Log.Fatalf("Error connecting to redis: %v", err)
		}
		defer rdb.Close()
		revoked = service.NewRedisRevocationRegistry(rdb, nil)
	default:
		logger.Log.Warn("Using the in-memory revocation registry; revoked tokens become valid again after a restart")
		revoked = service.NewMemoryRevocationRegistry(nil)
	}

	h, _ := NewHandler(cfg, Components{
		Users:   users,
		Revoked: revoked,
		Mailer:  mailer.New(cfg.Mail),
		Hasher:  service.NewBcryptHasher(cfg.Auth.BcryptCost),
	})

	// --- Start the Server with Graceful Shutdown ---
	port := cfg.Server.Port
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Infof("Server starting on port :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Warn("Shutdown signal received. Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("Server forced to shutdown: %v", err)
		return
	}

	logger.Log.Info("Server exited properly")
}

// TestApp is a fully wired application for end-to-end tests.
type TestApp struct {
	Router      http.Handler
	AuthService *service.AuthService
	Users       repository.IUserRepository
	DB          *sql.DB
	Redis       *redis.Client
}

// NewTestApp wires the application against database and rdb. A nil database
// selects the in-memory user store and a nil rdb the in-memory revocation registry.
// Passwords are hashed with bcrypt's minimum cost.
func NewTestApp(cfg *config.Config, database *sql.DB, rdb *redis.Client, m mailer.Mailer) *TestApp {
	var users repository.IUserRepository = repository.NewMemoryUserRepository()
	if database != nil {
		users = repository.NewUserRepository(database)
	}

	var revoked service.RevocationRegistry = service.NewMemoryRevocationRegistry(nil)
	if rdb != nil {
		revoked = service.NewRedisRevocationRegistry(rdb, nil)
	}

	if m == nil {
		m = mailer.LogMailer{}
	}

	h, authService := NewHandler(cfg, Components{
		Users:   users,
		Revoked: revoked,
		Mailer:  m,
		Hasher:  service.NewBcryptHasher(bcrypt.MinCost),
	})

	return &TestApp{
		Router:      h,
		AuthService: authService,
		Users:       users,
		DB:          database,
		Redis:       rdb,
	}
}
