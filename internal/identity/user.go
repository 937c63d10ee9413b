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

package identity

import (
	"context"
	"errors"
	"time"

	"github.com/cmskit/cmsauth/internal/permission"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User represents a CMS user. Username is the email address; a
// superadmin bypasses every permission check and cannot be deleted
// through the standard path.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsSuperadmin bool
	FirstName    string
	LastName     string

	// Permissions is the user-level override map: true grants, false is
	// an explicit deny, an absent key inherits from roles.
	Permissions permission.Set

	// RoleSlugs holds the slugs of the user's roles, loaded with the
	// user. Ownership of the membership lives in the join table.
	RoleSlugs []string

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Username returns the login name of the user.
func (u *User) Username() string {
	return u.Email
}

// IsAdmin returns whether the user is a top-level admin.
func (u *User) IsAdmin() bool {
	return u.IsSuperadmin
}

// HasRole returns whether the user holds the given role.
func (u *User) HasRole(slug string) bool {
	for _, s := range u.RoleSlugs {
		if s == slug {
			return true
		}
	}
	return false
}

// OwnPermissions returns the truthy keys of the user-level map, sorted.
// Role-derived permissions are resolved by the authorization engine.
func (u *User) OwnPermissions() []string {
	return u.Permissions.TruthyKeys()
}

// Profile holds the non-credential user fields set at registration.
type Profile struct {
	FirstName string
	LastName  string
}

// Update describes a partial profile update; nil fields are left as-is.
type Update struct {
	Email     *string
	FirstName *string
	LastName  *string
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create creates a new user. Returns ErrUserAlreadyExists on a
	// duplicate email.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by email (the username)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update persists profile and permission-map changes
	Update(ctx context.Context, user *User) error

	// UpdatePassword replaces the stored credential hash
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// Delete removes a user record
	Delete(ctx context.Context, id string) error

	// List retrieves all users ordered by email; withAdmin includes
	// superadmins
	List(ctx context.Context, withAdmin bool) ([]*User, error)

	// ListByRole retrieves users holding the given role, ordered by email
	ListByRole(ctx context.Context, slug string, withAdmin bool) ([]*User, error)

	// RecordLogin stamps the user's last login time
	RecordLogin(ctx context.Context, id string) error
}
