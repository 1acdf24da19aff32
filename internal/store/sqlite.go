package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/ashureev/whisper-relay/internal/shared"
	_ "modernc.org/sqlite"
)

const sqliteDSNParams = "_pragma=busy_timeout(5000)" +
	"&_pragma=journal_mode(WAL)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_txlock=immediate"

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Every pooled connection gets the pragmas; busy_timeout goes first so
	// the journal_mode switch itself waits on a locked file.
	dsn := dbPath + "?" + sqliteDSNParams
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	// id is not the rowid alias; rowid carries insertion order.
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER NOT NULL UNIQUE,
		role TEXT NOT NULL DEFAULT 'user',
		first_name TEXT NOT NULL,
		second_name TEXT,
		profile_image_ref TEXT,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var role string
	var secondName, imageRef sql.NullString
	var createdAt int64

	if err := row.Scan(&user.ID, &role, &user.FirstName, &secondName, &imageRef, &createdAt); err != nil {
		return nil, err
	}

	parsed, err := domain.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", user.ID, err)
	}
	user.Role = parsed
	user.SecondName = secondName.String
	user.ProfileImageRef = imageRef.String
	user.CreatedAt = time.Unix(createdAt, 0)
	return &user, nil
}

// GetUser retrieves a user by id.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	query := `
		SELECT id, role, first_name, second_name, profile_image_ref, created_at
		FROM users WHERE id = ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, role, first_name, second_name, profile_image_ref, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	role := user.Role
	if role == "" {
		role = domain.RoleUser
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		user.ID, string(role), user.FirstName,
		nullIfEmpty(user.SecondName), nullIfEmpty(user.ProfileImageRef),
		createdAt.Unix(),
	)
	switch {
	case err == nil:
		return nil
	case shared.IsSQLiteUniqueError(err):
		return fmt.Errorf("create user %d: %w", user.ID, ErrUserExists)
	case shared.IsSQLiteConflictError(err):
		return fmt.Errorf("create user %d: %w: %v", user.ID, ErrBusy, err)
	default:
		return fmt.Errorf("create user %d: %w", user.ID, err)
	}
}

// ListMembers returns all non-blocked users in creation order.
func (s *SQLiteStore) ListMembers(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT id, role, first_name, second_name, profile_image_ref, created_at
		FROM users WHERE role != ? ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, string(domain.RoleBlocked))
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close member rows", "error", closeErr)
		}
	}()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
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
func (s *SQLiteStore) SetRole(ctx context.Context, id int64, role domain.Role) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("SetRole affected 0 rows", "user_id", id, "role", role)
		return fmt.Errorf("set role for %d: %w", id, ErrUserNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
