package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresStore implements Repository using a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to Postgres, verifies the connection and ensures the schema.
func NewPostgres(ctx context.Context, dsn string) (Repository, error) {
	cfg, err := pgxpool.ParseConfig(normalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 4
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 60 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

// normalizeDSN converts SQLAlchemy-style driver suffixes to a pgx DSN.
func normalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	s = strings.Replace(s, "postgresql+asyncpg://", "postgresql://", 1)
	s = strings.Replace(s, "postgres+asyncpg://", "postgres://", 1)
	s = strings.Replace(s, "postgresql+pgx://", "postgresql://", 1)
	s = strings.Replace(s, "postgres+pgx://", "postgres://", 1)
	return s
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		seq BIGSERIAL,
		id BIGINT PRIMARY KEY,
		role TEXT NOT NULL DEFAULT 'user',
		first_name TEXT NOT NULL,
		second_name TEXT,
		profile_image_ref TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanPgUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	var role string
	var secondName, imageRef *string

	if err := row.Scan(&user.ID, &role, &user.FirstName, &secondName, &imageRef, &user.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := domain.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", user.ID, err)
	}
	user.Role = parsed
	if secondName != nil {
		user.SecondName = *secondName
	}
	if imageRef != nil {
		user.ProfileImageRef = *imageRef
	}
	return &user, nil
}

// GetUser retrieves a user by id.
func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	query := `
		SELECT id, role, first_name, second_name, profile_image_ref, created_at
		FROM users WHERE id = $1`

	user, err := scanPgUser(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, role, first_name, second_name, profile_image_ref, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	role := user.Role
	if role == "" {
		role = domain.RoleUser
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, query,
		user.ID, string(role), user.FirstName,
		nullIfEmpty(user.SecondName), nullIfEmpty(user.ProfileImageRef),
		createdAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("create user %d: %w", user.ID, ErrUserExists)
		}
		return fmt.Errorf("create user %d: %w", user.ID, err)
	}
	return nil
}

// ListMembers returns all non-blocked users in creation order.
func (s *PostgresStore) ListMembers(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT id, role, first_name, second_name, profile_image_ref, created_at
		FROM users WHERE role <> $1 ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, string(domain.RoleBlocked))
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanPgUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return users, nil
}

// SetRole changes the role of an existing user.
func (s *PostgresStore) SetRole(ctx context.Context, id int64, role domain.Role) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET role = $1 WHERE id = $2`, string(role), id)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set role for %d: %w", id, ErrUserNotFound)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
