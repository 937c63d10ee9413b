// Copyright 2026 The CMSKit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cmskit/cmsauth/internal/identity"
	"github.com/cmskit/cmsauth/internal/permission"
)

const uniqueViolation = "23505"

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	perms, err := json.Marshal(user.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	now := time.Now()
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, password_hash, is_superadmin,
			first_name, last_name, permissions,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.ID, user.Email, user.PasswordHash, user.IsSuperadmin,
		user.FirstName, user.LastName, perms,
		now, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return identity.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepository) getBy(ctx context.Context, column, value string) (*identity.User, error) {
	user, err := scanUser(r.db.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, is_superadmin,
			first_name, last_name, permissions,
			last_login_at, created_at, updated_at
		FROM users
		WHERE `+column+` = $1
	`, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := r.loadRoleSlugs(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// Update persists profile and permission-map changes
func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	perms, err := json.Marshal(user.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET
			email = $2,
			first_name = $3,
			last_name = $4,
			permissions = $5,
			updated_at = NOW()
		WHERE id = $1
	`, user.ID, user.Email, user.FirstName, user.LastName, perms)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	return nil
}

// UpdatePassword replaces the stored credential hash
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	return nil
}

// Delete removes a user record
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	return nil
}

// List retrieves all users ordered by email
func (r *UserRepository) List(ctx context.Context, withAdmin bool) ([]*identity.User, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, email, password_hash, is_superadmin,
			first_name, last_name, permissions,
			last_login_at, created_at, updated_at
		FROM users
		WHERE is_superadmin = FALSE OR $1
		ORDER BY email
	`, withAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	return r.collectUsers(ctx, rows)
}

// ListByRole retrieves users holding the given role, ordered by email
func (r *UserRepository) ListByRole(ctx context.Context, slug string, withAdmin bool) ([]*identity.User, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT u.id, u.email, u.password_hash, u.is_superadmin,
			u.first_name, u.last_name, u.permissions,
			u.last_login_at, u.created_at, u.updated_at
		FROM users u
		JOIN role_users ru ON ru.user_id = u.id
		WHERE ru.role_slug = $1 AND (u.is_superadmin = FALSE OR $2)
		ORDER BY u.email
	`, slug, withAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	return r.collectUsers(ctx, rows)
}

// RecordLogin stamps the user's last login time
func (r *UserRepository) RecordLogin(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE users SET last_login_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}

	if result.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}

	return nil
}

func (r *UserRepository) collectUsers(ctx context.Context, rows pgx.Rows) ([]*identity.User, error) {
	var users []*identity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	for _, user := range users {
		if err := r.loadRoleSlugs(ctx, user); err != nil {
			return nil, err
		}
	}

	return users, nil
}

func (r *UserRepository) loadRoleSlugs(ctx context.Context, user *identity.User) error {
	rows, err := r.db.pool.Query(ctx, `
		SELECT role_slug FROM role_users WHERE user_id = $1 ORDER BY role_slug
	`, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load role membership: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return fmt.Errorf("failed to scan role slug: %w", err)
		}
		user.RoleSlugs = append(user.RoleSlugs, slug)
	}

	return rows.Err()
}

func scanUser(row pgx.Row) (*identity.User, error) {
	var user identity.User
	var perms []byte
	var lastLogin *time.Time

	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.IsSuperadmin,
		&user.FirstName, &user.LastName, &perms,
		&lastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Permissions = permission.Set{}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &user.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}
	user.LastLoginAt = lastLogin

	return &user, nil
}
