package auth

import (
	"context"
	"errors"
	"strings"
)

// UserRepository хранилище учётных записей. Имена сравниваются без
// учёта регистра.
type UserRepository interface {
	// GetUserByUsername returns (nil, ErrUserNotFound) for unknown names.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// CreateUser ожидает уже посчитанный bcrypt хэш. При конфликте
	// имён возвращает ErrUserExists.
	CreateUser(ctx context.Context, username, passwordHash string, privs Privs) (*User, error)

	UpdatePassword(ctx context.Context, username, passwordHash string) error
	UpdatePrivs(ctx context.Context, username string, privs Privs) error
	TouchLogin(ctx context.Context, username string) error

	Close() error
}

// Domain-level errors returned by the repository.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Helper to normalise usernames.
func normalize(username string) string {
	return strings.ToLower(username)
}
