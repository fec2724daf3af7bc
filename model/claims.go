package model

import "github.com/golang-jwt/jwt/v5"

// PurposePasswordReset marks tokens that may only be redeemed by the reset endpoint.
const PurposePasswordReset = "password_reset"

// AppClaims is the payload of access, refresh and reset tokens.
// Access and refresh tokens carry no purpose.
type AppClaims struct {
	UserID  int    `json:"id"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}
