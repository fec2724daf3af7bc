package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/themidix/GlucoCheckWebAPIv4/model"
	"github.com/themidix/GlucoCheckWebAPIv4/repository"
)

var ErrInvalidRole = errors.New("invalid role specified")

// UserService handles admin-side user management.
type UserService struct {
	userRepo repository.IUserRepository
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.IUserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// ListUsers returns the public view of every user.
func (s *UserService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.userRepo.GetAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list users: %w", err)
	}
	out := make([]model.User, 0, len(users))
	for _, u := range users {
		out = append(out, *u)
	}
	return out, nil
}

// UpdateUserRole validates the role and stores it. ADMIN also raises the admin flag.
func (s *UserService) UpdateUserRole(ctx context.Context, userID int, newRole model.Role) error {
	if newRole != model.RoleAdmin && newRole != model.RoleUser {
		return ErrInvalidRole
	}

	err := s.userRepo.UpdateUserRole(ctx, userID, string(newRole), newRole == model.RoleAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}
