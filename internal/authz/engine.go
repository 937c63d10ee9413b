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

// Package authz implements the role-based authorization core: roles,
// role membership, user-level permission overrides, and the effective
// permission decision that combines them.
package authz

import (
	"context"
	"log/slog"

	"github.com/cmskit/cmsauth/internal/events"
	"github.com/cmskit/cmsauth/internal/identity"
	"github.com/cmskit/cmsauth/internal/observability/logger"
	"github.com/cmskit/cmsauth/internal/permission"
)

// Engine answers "is this action allowed" and owns every role and
// permission mutation. Business-rule failures are reported as false;
// the only error-returning operation is CreateUser, where the caller
// has no sentinel value to recover with.
type Engine struct {
	users     identity.UserRepository
	roles     RoleRepository
	registrar *identity.Service
	sink      events.Sink
}

// NewEngine creates a new authorization engine
func NewEngine(
	users identity.UserRepository,
	roles RoleRepository,
	registrar *identity.Service,
	sink events.Sink,
) *Engine {
	return &Engine{
		users:     users,
		roles:     roles,
		registrar: registrar,
		sink:      sink,
	}
}

// HasRole returns whether the user holds the given role. Membership is
// queried directly; there is no admin bypass here.
func (e *Engine) HasRole(ctx context.Context, user *identity.User, slug string) bool {
	if user == nil {
		return false
	}
	return user.HasRole(slug)
}

// Can returns whether the user holds every one of the given
// permissions. A superadmin passes unconditionally, whatever was
// requested. User-level entries override role entries, so an explicit
// user deny beats a role grant.
func (e *Engine) Can(ctx context.Context, user *identity.User, permissions ...string) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	return e.resolve(ctx, user).AllowsAll(permissions...)
}

// CanAny returns whether the user holds at least one of the given
// permissions, with the same admin bypass as Can.
func (e *Engine) CanAny(ctx context.Context, user *identity.User, permissions ...string) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	return e.resolve(ctx, user).AllowsAny(permissions...)
}

// resolve layers the user's own permission map over the merged role
// maps. A role that can no longer be loaded contributes nothing.
func (e *Engine) resolve(ctx context.Context, user *identity.User) permission.Set {
	merged := permission.Set{}
	for _, slug := range user.RoleSlugs {
		role, err := e.roles.GetBySlug(ctx, slug)
		if err != nil {
			slog.WarnContext(ctx, "skipping unresolvable role",
				logger.Role(slug), logger.UserID(user.ID), logger.Component("authz"))
			continue
		}
		merged = merged.Merge(role.Permissions)
	}
	return merged.Merge(user.Permissions)
}

// Assign gives the user each of the named roles. Already-held roles
// count as success; a slug that cannot be resolved counts as failure.
// Returns true only when every role succeeded. Partial assignments are
// not rolled back, and the permissions-changed notification fires only
// on full success.
func (e *Engine) Assign(ctx context.Context, user *identity.User, slugs ...string) bool {
	applied := 0
	for _, slug := range slugs {
		if e.assignOne(ctx, user, slug) {
			applied++
		}
	}

	if applied != len(slugs) {
		return false
	}

	e.sink.UserPermissionsChanged(ctx, user.Username())
	return true
}

func (e *Engine) assignOne(ctx context.Context, user *identity.User, slug string) bool {
	if user.HasRole(slug) {
		return true
	}

	role, err := e.roles.GetBySlug(ctx, slug)
	if err != nil {
		return false
	}

	if err := e.roles.AttachUser(ctx, role.Slug, user.ID); err != nil {
		return false
	}

	user.RoleSlugs = append(user.RoleSlugs, role.Slug)
	return true
}

// Unassign removes each of the named roles from the user, with the
// same idempotency (not-held counts as success) and partial-failure
// policy as Assign.
//
// NOTE: on full success this returns false, not true, and the
// permissions-changed notification still fires. The polarity is
// inherited from long-standing callers that compensate for it; flipping
// it silently would invert their handling. See the tests pinning this.
func (e *Engine) Unassign(ctx context.Context, user *identity.User, slugs ...string) bool {
	applied := 0
	for _, slug := range slugs {
		if e.unassignOne(ctx, user, slug) {
			applied++
		}
	}

	if applied != len(slugs) {
		return false
	}

	e.sink.UserPermissionsChanged(ctx, user.Username())
	return false
}

func (e *Engine) unassignOne(ctx context.Context, user *identity.User, slug string) bool {
	if !user.HasRole(slug) {
		return true
	}

	role, err := e.roles.GetBySlug(ctx, slug)
	if err != nil {
		return false
	}

	if err := e.roles.DetachUser(ctx, role.Slug, user.ID); err != nil {
		return false
	}

	kept := user.RoleSlugs[:0]
	for _, s := range user.RoleSlugs {
		if s != slug {
			kept = append(kept, s)
		}
	}
	user.RoleSlugs = kept
	return true
}

// Grant sets the permission to true on the user record.
func (e *Engine) Grant(ctx context.Context, user *identity.User, perm string) bool {
	return e.GrantMany(ctx, user, []string{perm})
}

// GrantMany sets each permission to true on the user record and
// persists the map.
func (e *Engine) GrantMany(ctx context.Context, user *identity.User, perms []string) bool {
	if user.Permissions == nil {
		user.Permissions = permission.Set{}
	}
	for _, perm := range perms {
		user.Permissions.Grant(perm)
	}

	if err := e.users.Update(ctx, user); err != nil {
		return false
	}

	e.sink.UserPermissionsChanged(ctx, user.Username())
	return true
}

// Revoke sets the permission to false on the user record. The key
// stays in the map: an explicit deny is tracked, not forgotten.
func (e *Engine) Revoke(ctx context.Context, user *identity.User, perm string) bool {
	return e.RevokeMany(ctx, user, []string{perm})
}

// RevokeMany sets each permission to false on the user record and
// persists the map.
func (e *Engine) RevokeMany(ctx context.Context, user *identity.User, perms []string) bool {
	if user.Permissions == nil {
		user.Permissions = permission.Set{}
	}
	for _, perm := range perms {
		user.Permissions.Deny(perm)
	}

	if err := e.users.Update(ctx, user); err != nil {
		return false
	}

	e.sink.UserPermissionsChanged(ctx, user.Username())
	return true
}

// CreateRole creates a role with the given slug. The display name
// defaults from the slug when empty. Returns false if the slug is
// already taken.
func (e *Engine) CreateRole(ctx context.Context, slug, name string) bool {
	if _, err := e.roles.GetBySlug(ctx, slug); err == nil {
		return false
	}

	if name == "" {
		name = NameFromSlug(slug)
	}

	role := &Role{
		Slug:        slug,
		Name:        name,
		Permissions: permission.Set{},
	}
	if err := e.roles.Create(ctx, role); err != nil {
		return false
	}

	e.sink.RolesChanged(ctx)
	return true
}

// RemoveRole deletes the role with the given slug. Returns false if
// the slug is unknown.
func (e *Engine) RemoveRole(ctx context.Context, slug string) bool {
	if _, err := e.roles.GetBySlug(ctx, slug); err != nil {
		return false
	}

	if err := e.roles.Delete(ctx, slug); err != nil {
		return false
	}

	e.sink.RolesChanged(ctx)
	return true
}

// GrantToRole sets each permission to true on the role's map. Returns
// false if the role is unknown or persisting fails.
func (e *Engine) GrantToRole(ctx context.Context, slug string, perms ...string) bool {
	role, err := e.roles.GetBySlug(ctx, slug)
	if err != nil {
		return false
	}

	if role.Permissions == nil {
		role.Permissions = permission.Set{}
	}
	for _, perm := range perms {
		role.Permissions.Grant(perm)
	}

	if err := e.roles.Update(ctx, role); err != nil {
		return false
	}

	e.sink.RolesChanged(ctx)
	return true
}

// RevokeFromRole sets each permission to false on the role's map.
func (e *Engine) RevokeFromRole(ctx context.Context, slug string, perms ...string) bool {
	role, err := e.roles.GetBySlug(ctx, slug)
	if err != nil {
		return false
	}

	if role.Permissions == nil {
		role.Permissions = permission.Set{}
	}
	for _, perm := range perms {
		role.Permissions.Deny(perm)
	}

	if err := e.roles.Update(ctx, role); err != nil {
		return false
	}

	e.sink.RolesChanged(ctx)
	return true
}

// CreateUser registers a new user and applies the extra profile data.
func (e *Engine) CreateUser(ctx context.Context, username, password string, profile identity.Profile) (*identity.User, error) {
	return e.registrar.Register(ctx, username, password, profile)
}

// DeleteUser removes the named user. Returns false when the user is
// unknown or is a superadmin: the admin's identity is final.
func (e *Engine) DeleteUser(ctx context.Context, username string) bool {
	user, err := e.users.GetByEmail(ctx, username)
	if err != nil {
		return false
	}

	if user.IsAdmin() {
		return false
	}

	return e.users.Delete(ctx, user.ID) == nil
}

// UpdatePassword sets a new password for the named user.
func (e *Engine) UpdatePassword(ctx context.Context, username, password string) bool {
	user, err := e.users.GetByEmail(ctx, username)
	if err != nil {
		return false
	}

	return e.registrar.ChangePassword(ctx, user, password) == nil
}

// UpdateUser merges the update into the named user's profile and
// persists it.
func (e *Engine) UpdateUser(ctx context.Context, username string, update identity.Update) bool {
	user, err := e.users.GetByEmail(ctx, username)
	if err != nil {
		return false
	}

	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.FirstName != nil {
		user.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
	}

	return e.users.Update(ctx, user) == nil
}
