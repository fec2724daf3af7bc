// file: service/token.go

package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/themidix/GlucoCheckWebAPIv4/model"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// TokenCodec issues and parses HS256 tokens carrying a user id.
type TokenCodec struct {
	now func() time.Time
}

// NewTokenCodec returns a codec reading the wall clock. A nil now uses time.Now.
func NewTokenCodec(now func() time.Time) *TokenCodec {
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{now: now}
}

// Issue signs {id, exp: now+ttl} with secret and returns the token and its expiry.
func (c *TokenCodec) Issue(userID int, secret []byte, ttl time.Duration) (string, time.Time, error) {
	return c.IssueWithPurpose(userID, "", secret, ttl)
}

// IssueWithPurpose is Issue for single-purpose tokens such as password resets.
func (c *TokenCodec) IssueWithPurpose(userID int, purpose string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(ttl)

	claims := &model.AppClaims{
		UserID:  userID,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token string: %w", err)
	}
	return tokenString, expiresAt, nil
}

// Parse verifies tokenString against secret. It returns ErrTokenExpired once the
// embedded expiry has passed and ErrTokenInvalid for every other defect.
func (c *TokenCodec) Parse(tokenString string, secret []byte) (*model.AppClaims, error) {
	claims := &model.AppClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
