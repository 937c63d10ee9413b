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
	"testing"

	"github.com/cmskit/cmsauth/internal/identity"
	"github.com/cmskit/cmsauth/internal/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory() (*Directory, *mockUserRepo, *mockRoleRepo) {
	users := newMockUserRepo()
	roles := newMockRoleRepo()
	return NewDirectory(users, roles), users, roles
}

func TestDirectory_EffectivePermissions(t *testing.T) {
	ctx := context.Background()
	d, users, roles := newTestDirectory()

	roles.add("editor", permission.Set{"x.present": false, "x.other": true})
	user := users.add(&identity.User{
		ID:          "u1",
		Email:       "u@cms.test",
		RoleSlugs:   []string{"editor"},
		Permissions: permission.Set{"x.present": true},
	})

	// Own true wins via union; the role's explicit false does not
	// suppress it.
	assert.Equal(t, []string{"x.other", "x.present"}, d.EffectivePermissions(ctx, user))
}

func TestDirectory_EffectivePermissions_DedupedSorted(t *testing.T) {
	ctx := context.Background()
	d, users, roles := newTestDirectory()

	roles.add("editor", permission.Set{"b.shared": true, "a.role": true})
	roles.add("reviewer", permission.Set{"b.shared": true, "c.review": true})
	user := users.add(&identity.User{
		ID:          "u1",
		Email:       "u@cms.test",
		RoleSlugs:   []string{"editor", "reviewer"},
		Permissions: permission.Set{"d.own": true, "e.denied": false},
	})

	assert.Equal(t, []string{"a.role", "b.shared", "c.review", "d.own"}, d.EffectivePermissions(ctx, user))
	assert.Nil(t, d.EffectivePermissions(ctx, nil))
}

func TestDirectory_AllPermissions(t *testing.T) {
	ctx := context.Background()
	d, users, roles := newTestDirectory()

	roles.add("editor", permission.Set{"models.page.edit": true, "models.page.delete": false})
	users.add(&identity.User{ID: "u1", Email: "u@cms.test", Permissions: permission.Set{"models.page.publish": true}})
	users.add(&identity.User{ID: "a1", Email: "admin@cms.test", IsSuperadmin: true, Permissions: permission.Set{"admin.extra": true}})

	all, err := d.AllPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin.extra", "models.page.edit", "models.page.publish"}, all)

	assert.True(t, d.PermissionInUse(ctx, "models.page.edit"))
	assert.False(t, d.PermissionInUse(ctx, "models.page.delete"), "explicit deny is not in use")
	assert.False(t, d.PermissionInUse(ctx, "models.page.*"), "exact membership only")
}

func TestDirectory_RoleQueries(t *testing.T) {
	ctx := context.Background()
	d, users, roles := newTestDirectory()

	roles.add("editor", permission.Set{"b.two": true, "a.one": true, "c.denied": false})
	roles.add("author", nil)

	slugs, err := d.RoleSlugs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"author", "editor"}, slugs)

	assert.True(t, d.RoleExists(ctx, "editor"))
	assert.False(t, d.RoleExists(ctx, "ghost"))
	assert.Nil(t, d.Role(ctx, "ghost"))

	assert.Equal(t, []string{"a.one", "b.two"}, d.PermissionsForRole(ctx, "editor"))
	assert.Empty(t, d.PermissionsForRole(ctx, "ghost"))

	assert.False(t, d.RoleInUse(ctx, "editor"))
	users.add(&identity.User{ID: "a1", Email: "admin@cms.test", IsSuperadmin: true, RoleSlugs: []string{"editor"}})
	assert.True(t, d.RoleInUse(ctx, "editor"), "superadmins count for in-use")
}

func TestDirectory_UserQueries(t *testing.T) {
	ctx := context.Background()
	d, users, _ := newTestDirectory()

	users.add(&identity.User{ID: "u2", Email: "beta@cms.test", RoleSlugs: []string{"editor"}})
	users.add(&identity.User{ID: "u1", Email: "alpha@cms.test"})
	users.add(&identity.User{ID: "a1", Email: "admin@cms.test", IsSuperadmin: true, RoleSlugs: []string{"editor"}})

	assert.NotNil(t, d.UserByID(ctx, "u1"))
	assert.Nil(t, d.UserByID(ctx, "ghost"))
	assert.NotNil(t, d.UserByUsername(ctx, "alpha@cms.test"))
	assert.Nil(t, d.UserByUsername(ctx, "ghost@cms.test"))

	all, err := d.Users(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha@cms.test", all[0].Email, "ordered by email")

	withAdmin, err := d.Users(ctx, true)
	require.NoError(t, err)
	assert.Len(t, withAdmin, 3)

	forRole, err := d.UsersForRole(ctx, "editor", false)
	require.NoError(t, err)
	require.Len(t, forRole, 1)
	assert.Equal(t, "beta@cms.test", forRole[0].Email)

	forRoleAdmin, err := d.UsersForRole(ctx, "editor", true)
	require.NoError(t, err)
	assert.Len(t, forRoleAdmin, 2)
}

func TestDirectory_PermissionsForUser(t *testing.T) {
	ctx := context.Background()
	d, users, roles := newTestDirectory()

	roles.add("editor", permission.Set{"models.page.edit": true})
	users.add(&identity.User{ID: "u1", Email: "u@cms.test", RoleSlugs: []string{"editor"}})

	assert.Equal(t, []string{"models.page.edit"}, d.PermissionsForUser(ctx, "u@cms.test"))
	assert.Empty(t, d.PermissionsForUser(ctx, "ghost@cms.test"))
}
