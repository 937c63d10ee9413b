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

package authz

import (
	"context"

	"github.com/cmskit/cmsauth/internal/identity"
	"github.com/cmskit/cmsauth/internal/permission"
)

// Directory is the read side of the authorization core: the queries
// admin tooling and audits run against users, roles, and permissions.
// Queries return empty collections for unknown keys, never errors for
// business-rule misses.
type Directory struct {
	users identity.UserRepository
	roles RoleRepository
}

// NewDirectory creates a new directory over the given stores
func NewDirectory(users identity.UserRepository, roles RoleRepository) *Directory {
	return &Directory{users: users, roles: roles}
}

// UserByID returns a user by ID, or nil when unknown.
func (d *Directory) UserByID(ctx context.Context, id string) *identity.User {
	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		return nil
	}
	return user
}

// UserByUsername returns a user by username, or nil when unknown.
func (d *Directory) UserByUsername(ctx context.Context, username string) *identity.User {
	user, err := d.users.GetByEmail(ctx, username)
	if err != nil {
		return nil
	}
	return user
}

// Users returns all users ordered by email. withAdmin includes
// superadmins.
func (d *Directory) Users(ctx context.Context, withAdmin bool) ([]*identity.User, error) {
	return d.users.List(ctx, withAdmin)
}

// UsersForRole returns all users holding the given role, ordered by
// email.
func (d *Directory) UsersForRole(ctx context.Context, slug string, withAdmin bool) ([]*identity.User, error) {
	return d.users.ListByRole(ctx, slug, withAdmin)
}

// Role returns a role by slug, or nil when unknown.
func (d *Directory) Role(ctx context.Context, slug string) *Role {
	role, err := d.roles.GetBySlug(ctx, slug)
	if err != nil {
		return nil
	}
	return role
}

// RoleSlugs returns all known role slugs, sorted.
func (d *Directory) RoleSlugs(ctx context.Context) ([]string, error) {
	roles, err := d.roles.List(ctx)
	if err != nil {
		return nil, err
	}
	slugs := make([]string, 0, len(roles))
	for _, role := range roles {
		slugs = append(slugs, role.Slug)
	}
	return slugs, nil
}

// RoleExists returns whether a role with the given slug exists.
func (d *Directory) RoleExists(ctx context.Context, slug string) bool {
	return d.Role(ctx, slug) != nil
}

// RoleInUse returns whether any user, superadmins included, currently
// holds the role.
func (d *Directory) RoleInUse(ctx context.Context, slug string) bool {
	users, err := d.users.ListByRole(ctx, slug, true)
	if err != nil {
		return false
	}
	return len(users) > 0
}

// AllPermissions returns every permission granted anywhere: the union
// of all roles' and all users' truthy keys, sorted and deduplicated.
// This is an administrative scan over roles+users, not a hot path.
func (d *Directory) AllPermissions(ctx context.Context) ([]string, error) {
	roles, err := d.roles.List(ctx)
	if err != nil {
		return nil, err
	}
	users, err := d.users.List(ctx, true)
	if err != nil {
		return nil, err
	}

	sets := make([]permission.Set, 0, len(roles)+len(users))
	for _, role := range roles {
		sets = append(sets, role.Permissions)
	}
	for _, user := range users {
		sets = append(sets, user.Permissions)
	}

	return permission.Union(sets...), nil
}

// PermissionsForRole returns the role's truthy permission keys, sorted.
// Unknown roles yield an empty list.
func (d *Directory) PermissionsForRole(ctx context.Context, slug string) []string {
	role, err := d.roles.GetBySlug(ctx, slug)
	if err != nil {
		return nil
	}
	return role.Permissions.TruthyKeys()
}

// EffectivePermissions returns the resolved permission listing for a
// user: the union of the truthy subsets of the user's own map and each
// held role's map, sorted and deduplicated. Both sides are filtered for
// truthy values before the union, so an explicit false on a role never
// suppresses a grant made elsewhere.
func (d *Directory) EffectivePermissions(ctx context.Context, user *identity.User) []string {
	if user == nil {
		return nil
	}

	sets := make([]permission.Set, 0, len(user.RoleSlugs)+1)
	for _, slug := range user.RoleSlugs {
		role, err := d.roles.GetBySlug(ctx, slug)
		if err != nil {
			continue
		}
		sets = append(sets, role.Permissions)
	}
	sets = append(sets, user.Permissions)

	return permission.Union(sets...)
}

// PermissionsForUser resolves the username and returns the user's
// effective permissions. Unknown users yield an empty list.
func (d *Directory) PermissionsForUser(ctx context.Context, username string) []string {
	user, err := d.users.GetByEmail(ctx, username)
	if err != nil {
		return nil
	}
	return d.EffectivePermissions(ctx, user)
}

// PermissionInUse returns whether a permission with the given exact
// name is granted anywhere. No wildcard matching: "something.*" only
// matches a literally stored "something.*".
func (d *Directory) PermissionInUse(ctx context.Context, name string) bool {
	all, err := d.AllPermissions(ctx)
	if err != nil {
		return false
	}
	for _, key := range all {
		if key == name {
			return true
		}
	}
	return false
}
