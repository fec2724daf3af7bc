// file: repository/memory_user_repository.go

package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/themidix/GlucoCheckWebAPIv4/model"
)

// MemoryUserRepository is an in-process credential store for development and tests.
// It enforces the same email uniqueness as the users table.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[int]*model.User
	byEmail map[string]int
	seq     int
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[int]*model.User),
		byEmail: make(map[string]int),
	}
}

func (r *MemoryUserRepository) CreateUser(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return ErrDuplicateKey
	}
	if user.Role == "" {
		user.Role = string(model.RoleUser)
	}

	r.seq++
	user.ID = r.seq
	user.CreatedAt = time.Now().UTC()

	stored := *user
	r.byID[stored.ID] = &stored
	r.byEmail[stored.Email] = stored.ID
	return nil
}

func (r *MemoryUserRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	u := *r.byID[id]
	return &u, nil
}

func (r *MemoryUserRepository) GetUserByID(_ context.Context, id int) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	u := *stored
	return &u, nil
}

func (r *MemoryUserRepository) GetAllUsers(_ context.Context) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*model.User, 0, len(r.byID))
	for _, stored := range r.byID {
		u := *stored
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, id int, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Password = passwordHash
	return nil
}

func (r *MemoryUserRepository) UpdateUserRole(_ context.Context, id int, role string, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Role = role
	stored.IsAdmin = isAdmin
	return nil
}
