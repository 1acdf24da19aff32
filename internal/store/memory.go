package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/whisper-relay/internal/domain"
)

// MemoryStore is a process-local Repository for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[int64]*domain.User
	order []int64
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{users: make(map[int64]*domain.User)}
}

// GetUser retrieves a copy of the stored user.
func (m *MemoryStore) GetUser(_ context.Context, id int64) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

// CreateUser stores a copy of user.
func (m *MemoryStore) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; exists {
		return fmt.Errorf("create user %d: %w", user.ID, ErrUserExists)
	}
	cp := *user
	if cp.Role == "" {
		cp.Role = domain.RoleUser
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.users[user.ID] = &cp
	m.order = append(m.order, user.ID)
	return nil
}

// ListMembers returns all non-blocked users in creation order.
func (m *MemoryStore) ListMembers(_ context.Context) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*domain.User, 0, len(m.order))
	for _, id := range m.order {
		user := m.users[id]
		if user.IsBlocked() {
			continue
		}
		cp := *user
		users = append(users, &cp)
	}
	return users, nil
}

// SetRole changes the role of an existing user.
func (m *MemoryStore) SetRole(_ context.Context, id int64, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return fmt.Errorf("set role for %d: %w", id, ErrUserNotFound)
	}
	user.Role = role
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

var (
	_ Repository = (*MemoryStore)(nil)
	_ Repository = (*SQLiteStore)(nil)
	_ Repository = (*PostgresStore)(nil)
)
