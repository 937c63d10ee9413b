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

	"github.com/cmskit/cmsauth/internal/authz"
	"github.com/cmskit/cmsauth/internal/permission"
)

// RoleRepository implements authz.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create creates a new role
func (r *RoleRepository) Create(ctx context.Context, role *authz.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	now := time.Now()
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO roles (slug, name, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, role.Slug, role.Name, perms, now, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return authz.ErrRoleAlreadyExists
		}
		return fmt.Errorf("failed to insert role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now

	return nil
}

// GetBySlug retrieves a role by its slug
func (r *RoleRepository) GetBySlug(ctx context.Context, slug string) (*authz.Role, error) {
	role, err := scanRole(r.db.pool.QueryRow(ctx, `
		SELECT slug, name, permissions, created_at, updated_at
		FROM roles
		WHERE slug = $1
	`, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return role, nil
}

// Update persists permission-map changes
func (r *RoleRepository) Update(ctx context.Context, role *authz.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE roles SET name = $2, permissions = $3, updated_at = NOW()
		WHERE slug = $1
	`, role.Slug, role.Name, perms)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	if result.RowsAffected() == 0 {
		return authz.ErrRoleNotFound
	}

	return nil
}

// Delete removes a role; memberships go with it via the cascade
func (r *RoleRepository) Delete(ctx context.Context, slug string) error {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM roles WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	if result.RowsAffected() == 0 {
		return authz.ErrRoleNotFound
	}

	return nil
}

// List retrieves all roles ordered by slug
func (r *RoleRepository) List(ctx context.Context) ([]*authz.Role, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT slug, name, permissions, created_at, updated_at
		FROM roles
		ORDER BY slug
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*authz.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// AttachUser adds a user to the role's membership. Re-attaching is a
// no-op.
func (r *RoleRepository) AttachUser(ctx context.Context, slug, userID string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO role_users (role_slug, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, slug, userID)
	if err != nil {
		return fmt.Errorf("failed to attach user to role: %w", err)
	}

	return nil
}

// DetachUser removes a user from the role's membership. Detaching a
// non-member is a no-op.
func (r *RoleRepository) DetachUser(ctx context.Context, slug, userID string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM role_users WHERE role_slug = $1 AND user_id = $2
	`, slug, userID)
	if err != nil {
		return fmt.Errorf("failed to detach user from role: %w", err)
	}

	return nil
}

func scanRole(row pgx.Row) (*authz.Role, error) {
	var role authz.Role
	var perms []byte

	if err := row.Scan(&role.Slug, &role.Name, &perms, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}

	role.Permissions = permission.Set{}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &role.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	return &role, nil
}
