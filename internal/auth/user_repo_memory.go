package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryUserRepo is a threadsafe in-memory storage useful for tests & single-instance servers.
// ID counter starts from 1.
type MemoryUserRepo struct {
	mu     sync.RWMutex
	users  map[string]*User // key = lowercase(username)
	nextID uint64
}

// NewMemoryUserRepo returns an empty repository.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:  make(map[string]*User),
		nextID: 1,
	}
}

// GetUserByUsername retrieves user by case-insensitive username.
// Возвращается копия, чтобы вызывающий не менял запись мимо репозитория.
func (r *MemoryUserRepo) GetUserByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[normalize(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// CreateUser inserts a new user if username not present.
func (r *MemoryUserRepo) CreateUser(_ context.Context, username, passwordHash string, privs Privs) (*User, error) {
	key := normalize(username)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[key]; exists {
		return nil, ErrUserExists
	}

	now := time.Now()
	user := &User{
		ID:           r.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		Privs:        privs,
		CreatedAt:    now,
		LastLogin:    now,
	}
	r.nextID++
	r.users[key] = user
	cp := *user
	return &cp, nil
}

func (r *MemoryUserRepo) update(username string, fn func(u *User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[normalize(username)]
	if !ok {
		return ErrUserNotFound
	}
	fn(user)
	return nil
}

func (r *MemoryUserRepo) UpdatePassword(_ context.Context, username, passwordHash string) error {
	return r.update(username, func(u *User) { u.PasswordHash = passwordHash })
}

func (r *MemoryUserRepo) UpdatePrivs(_ context.Context, username string, privs Privs) error {
	return r.update(username, func(u *User) { u.Privs = privs })
}

func (r *MemoryUserRepo) TouchLogin(_ context.Context, username string) error {
	return r.update(username, func(u *User) { u.LastLogin = time.Now() })
}

// Count количество учётных записей
func (r *MemoryUserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *MemoryUserRepo) Close() error { return nil }
