package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/equipctl/internal/infrastructure/database"
)

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user *User) error
	SetActive(ctx context.Context, id string, active bool) error
}

// SQLiteUserRepository implements UserRepository over the users and
// user_auth tables.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const selectUser = `
	SELECT u.id, u.name, a.username, u.email, u.is_active, u.created_at, a.password_hash
	FROM users u
	JOIN user_auth a ON a.user_id = u.id`

// Create inserts the profile and login rows in one transaction.
// IDs are generated if empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	created := database.FormatTime(user.CreatedAt)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, name, email, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, boolToInt(user.IsActive), created,
	); err != nil {
		return classifyWrite(err, "creating user")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_auth (id, username, password_hash, user_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), user.Username, user.PasswordHash, user.ID, created,
	); err != nil {
		return classifyWrite(err, "creating user login")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their users row id.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, selectUser+" WHERE u.id = ?", id)
}

// GetByUsername retrieves a user by their login name.
func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getUser(ctx, selectUser+" WHERE a.username = ?", username)
}

// List returns all users ordered by creation date.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, selectUser+" ORDER BY u.created_at ASC, u.rowid ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Update writes name, email, active flag and username.
func (r *SQLiteUserRepository) Update(ctx context.Context, user *User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, is_active = ? WHERE id = ?`,
		user.Name, user.Email, boolToInt(user.IsActive), user.ID,
	)
	if err != nil {
		return classifyWrite(err, "updating user")
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports
		return ErrUserNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE user_auth SET username = ? WHERE user_id = ?`,
		user.Username, user.ID,
	); err != nil {
		return classifyWrite(err, "updating username")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user update: %w", err)
	}
	return nil
}

// SetActive flips the active flag. Users are never deleted.
func (r *SQLiteUserRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("setting user active: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports
		return ErrUserNotFound
	}
	return nil
}

func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, arg any) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var (
		u         User
		active    int
		createdAt string
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &active, &createdAt, &u.PasswordHash); err != nil {
		return nil, err
	}
	u.IsActive = active != 0

	t, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = t
	return &u, nil
}

// classifyWrite maps UNIQUE failures on email and username to sentinels.
func classifyWrite(err error, op string) error {
	if database.IsUniqueViolation(err) {
		if strings.Contains(err.Error(), "users.email") {
			return ErrEmailExists
		}
		return ErrUsernameExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
