package iam

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/medorbit/televisit/pkg/database"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// UserRepository implements user data persistence
type UserRepository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB, log *logger.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: log,
	}
}

// Create creates a new user in the database
func (r *UserRepository) Create(user *types.User) error {
	query := `
		INSERT INTO users (id, email, name, role, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(query,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		user.PasswordHash,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return types.NewValidationError("EMAIL_EXISTS", "User with this email already exists", nil)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.WithUserID(user.ID).Info("User created successfully")
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(id string) (*types.User, error) {
	query := `
		SELECT id, email, name, role, password_hash, is_active, created_at, updated_at
		FROM users
		WHERE id = $1`

	return r.scanUser(r.db.QueryRow(query, id), id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(email string) (*types.User, error) {
	query := `
		SELECT id, email, name, role, password_hash, is_active, created_at, updated_at
		FROM users
		WHERE email = $1`

	return r.scanUser(r.db.QueryRow(query, email), email)
}

func (r *UserRepository) scanUser(row *sql.Row, key string) (*types.User, error) {
	user := &types.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError("USER_NOT_FOUND", fmt.Sprintf("user not found: %s", key))
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// UpdateRole updates the denormalized role column for a user
func (r *UserRepository) UpdateRole(id string, role types.UserRole) error {
	query := `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, role, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError("USER_NOT_FOUND", fmt.Sprintf("user not found: %s", id))
	}

	return nil
}

// Update applies a set of column updates to a user
func (r *UserRepository) Update(id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return fmt.Errorf("no updates provided")
	}

	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	for column, value := range updates {
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", argIndex))
	args = append(args, time.Now())
	argIndex++

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(setParts, ", "), argIndex)
	args = append(args, id)

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError("USER_NOT_FOUND", fmt.Sprintf("user not found: %s", id))
	}

	return nil
}
