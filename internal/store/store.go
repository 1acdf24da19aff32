// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/whisper-relay/internal/domain"
)

var (
	// ErrUserExists is returned by CreateUser when the id is already stored.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when an operation targets an unknown user.
	ErrUserNotFound = errors.New("user not found")
	// ErrBusy is returned when the backend is temporarily locked.
	ErrBusy = errors.New("store busy")
)

// Repository defines the interface for persisting community members.
type Repository interface {
	// GetUser retrieves a user by id. It returns nil, nil when absent.
	GetUser(ctx context.Context, id int64) (*domain.User, error)

	// CreateUser inserts a new user. It fails with ErrUserExists for known ids.
	CreateUser(ctx context.Context, user *domain.User) error

	// ListMembers returns all non-blocked users in creation order.
	ListMembers(ctx context.Context) ([]*domain.User, error)

	// SetRole changes the role of an existing user.
	SetRole(ctx context.Context, id int64, role domain.Role) error

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
