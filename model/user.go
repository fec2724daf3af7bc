// file: model/user.go

package model

import "time"

// Role is the access tag stored on a user record.
type Role string

const (
	RoleUser  Role = "GLUCOCHECK_USER"
	RoleAdmin Role = "ADMIN"
)

// User is a stored credential record. The password hash never leaves the server.
type User struct {
	ID        int       `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// PublicUser is the subset of User returned by login and profile endpoints.
type PublicUser struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// Identity is what the authentication guard hands to protected handlers.
type Identity struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}
