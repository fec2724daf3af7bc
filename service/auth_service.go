// file: service/auth_service.go

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/themidix/GlucoCheckWebAPIv4/logger"
	"github.com/themidix/GlucoCheckWebAPIv4/mailer"
	"github.com/themidix/GlucoCheckWebAPIv4/model"
	"github.com/themidix/GlucoCheckWebAPIv4/repository"
)

var (
	ErrMissingFields       = errors.New("missing required fields")
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrWeakPassword        = errors.New("password must be at least 8 characters long, include an uppercase letter, a lowercase letter, a number, and a special character")
	ErrEmailTaken          = errors.New("email already in use")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrIncorrectPassword   = errors.New("current password is incorrect")
	ErrTokenRevoked        = errors.New("token has been revoked")
	ErrUserNotFound        = errors.New("user not found")
	ErrMissingToken        = errors.New("token is missing")
	ErrMalformedAuthHeader = errors.New("invalid token format")
)

// AuthConfig carries secrets and lifetimes. It is built once at startup.
type AuthConfig struct {
	AccessSecret         []byte
	RefreshSecret        []byte
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	ResetTTL             time.Duration
	ResetURL             string
	SingleUseResetTokens bool
}

type AuthService struct {
	users   repository.IUserRepository
	revoked RevocationRegistry
	mailer  mailer.Mailer
	hasher  PasswordHasher
	codec   *TokenCodec
	cfg     AuthConfig

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users repository.IUserRepository, revoked RevocationRegistry, m mailer.Mailer, hasher PasswordHasher, codec *TokenCodec, cfg AuthConfig) *AuthService {
	if codec == nil {
		codec = NewTokenCodec(nil)
	}
	return &AuthService{
		users:   users,
		revoked: revoked,
		mailer:  m,
		hasher:  hasher,
		codec:   codec,
		cfg:     cfg,
	}
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register validates the input, stores the hashed password and returns the new user id.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (int, error) {
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" || in.Email == "" || in.Password == "" {
		return 0, ErrMissingFields
	}
	if !IsValidEmail(in.Email) {
		return 0, ErrInvalidEmail
	}
	if !IsValidPassword(in.Password) {
		return 0, ErrWeakPassword
	}

	log := logger.Log.WithField("email", in.Email)

	// Fast path only; the unique constraint below is what actually guards duplicates.
	if _, err := s.users.GetUserByEmail(ctx, in.Email); err == nil {
		return 0, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("could not check existing user: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return 0, fmt.Errorf("could not hash password: %w", err)
	}

	user := &model.User{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     in.Email,
		Password:  hash,
		Role:      string(model.RoleUser),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			log.Warn("Concurrent registration lost the race on email")
			return 0, ErrEmailTaken
		}
		return 0, fmt.Errorf("could not create user: %w", err)
	}

	log.WithField("user_id", user.ID).Info("User registered")
	return user.ID, nil
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	model.TokenPair
	User model.PublicUser
}

// Login verifies credentials and issues an access/refresh pair. Unknown email and
// wrong password produce the same ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}
	if !IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Same bcrypt work as a wrong password, so timing does not reveal the account.
			s.hasher.Verify(password, s.decoyHash())
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("could not load user: %w", err)
	}
	if !s.hasher.Verify(password, user.Password) {
		logger.Log.WithField("user_id", user.ID).Warn("Login failed: password mismatch")
		return nil, ErrInvalidCredentials
	}

	access, _, err := s.codec.Issue(user.ID, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.codec.Issue(user.ID, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	logger.Log.WithField("user_id", user.ID).Info("User logged in")
	return &LoginResult{
		TokenPair: model.TokenPair{AccessToken: access, RefreshToken: refresh},
		User:      user.Public(),
	}, nil
}

// Authenticate is the guard shared by every protected operation. It returns
// ErrTokenRevoked, ErrTokenExpired, ErrTokenInvalid or ErrUserNotFound.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	revoked, err := s.revoked.IsRevoked(ctx, token)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	claims, err := s.codec.Parse(token, s.cfg.AccessSecret)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" {
		return nil, ErrTokenInvalid
	}

	user, err := s.loadUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return &model.Identity{User: user, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout revokes the caller's access token. A refresh token belonging to the same
// user is revoked first; anything else passed as refreshToken is ignored. On error
// the access token is still valid and the call can be retried.
func (s *AuthService) Logout(ctx context.Context, id *model.Identity, refreshToken string) error {
	if refreshToken != "" {
		claims, err := s.codec.Parse(refreshToken, s.cfg.RefreshSecret)
		if err == nil && claims.UserID == id.User.ID {
			if err := s.revoked.Revoke(ctx, refreshToken, claims.ExpiresAt.Time); err != nil {
				return err
			}
		}
	}

	if err := s.revoked.Revoke(ctx, id.Token, id.ExpiresAt); err != nil {
		return err
	}

	logger.Log.WithField("user_id", id.User.ID).Info("User logged out")
	return nil
}

// Refresh exchanges a refresh token for a new access token. The refresh token is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrMissingFields
	}

	revoked, err := s.revoked.IsRevoked(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if revoked {
		return "", ErrTokenRevoked
	}

	claims, err := s.codec.Parse(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", err
	}
	user, err := s.loadUser(ctx, claims.UserID)
	if err != nil {
		return "", err
	}

	access, _, err := s.codec.Issue(user.ID, s.cfg.AccessSecret, s.cfg.AccessTTL)
	return access, err
}

// ForgotPassword mails a reset link carrying a short-lived token signed with the access secret.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	if email == "" {
		return ErrMissingFields
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("could not load user: %w", err)
	}

	token, _, err := s.codec.IssueWithPurpose(user.ID, model.PurposePasswordReset, s.cfg.AccessSecret, s.cfg.ResetTTL)
	if err != nil {
		return err
	}

	link := strings.TrimRight(s.cfg.ResetURL, "/") + "/" + token
	return s.mailer.SendPasswordReset(ctx, user.Email, link)
}

// ResetPassword sets a new password for the user named by resetToken. Unless
// single-use tokens are enabled, the same token keeps working until it expires.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if newPassword == "" {
		return ErrMissingFields
	}
	if !IsValidPassword(newPassword) {
		return ErrWeakPassword
	}

	claims, err := s.codec.Parse(resetToken, s.cfg.AccessSecret)
	if err != nil {
		return err
	}
	if claims.Purpose != model.PurposePasswordReset {
		return ErrTokenInvalid
	}

	// The token is spent before the password changes; a failed update needs a new link.
	if s.cfg.SingleUseResetTokens {
		claimed, err := s.revoked.RevokeIfAbsent(ctx, resetToken, claims.ExpiresAt.Time)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrTokenInvalid
		}
	}

	if err := s.setPassword(ctx, claims.UserID, newPassword); err != nil {
		return err
	}

	logger.Log.WithField("user_id", claims.UserID).Info("Password reset via token")
	return nil
}

// ChangePassword replaces the password of an authenticated user after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, user *model.User, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return ErrMissingFields
	}
	if !IsValidPassword(newPassword) {
		return ErrWeakPassword
	}
	if !s.hasher.Verify(currentPassword, user.Password) {
		logger.Log.WithField("user_id", user.ID).Warn("Password change rejected: current password mismatch")
		return ErrIncorrectPassword
	}

	if err := s.setPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}
	logger.Log.WithField("user_id", user.ID).Info("Password changed from profile")
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, userID int, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("could not hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("could not update password: %w", err)
	}
	return nil
}

// decoyHash is a hash at the configured cost that no submitted password matches.
func (s *AuthService) decoyHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("decoy-" + uuid.NewString())
		if err != nil {
			logger.Log.WithError(err).Warn("Could not build decoy password hash")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *AuthService) loadUser(ctx context.Context, id int) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logger.Log.WithFields(logrus.Fields{"user_id": id}).Warn("Token references a missing user")
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("could not load user: %w", err)
	}
	return user, nil
}
