// file: model/token.go

package model

// TokenPair is issued on successful login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse is the body returned by POST /login.
type LoginResponse struct {
	Message string `json:"message"`
	TokenPair
	User PublicUser `json:"user"`
}

// RefreshResponse is the body returned by POST /refresh.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// RegisterResponse is the body returned by POST /register.
type RegisterResponse struct {
	Message string `json:"message"`
	UserID  int    `json:"user_id"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}
