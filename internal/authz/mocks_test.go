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
	"sort"

	"github.com/cmskit/cmsauth/internal/identity"
	"github.com/cmskit/cmsauth/internal/permission"
)

// mockUserRepo is a simple in-memory implementation of identity.UserRepository
type mockUserRepo struct {
	users      map[string]*identity.User // by ID
	failUpdate bool
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*identity.User)}
}

func (m *mockUserRepo) add(u *identity.User) *identity.User {
	if u.Permissions == nil {
		u.Permissions = permission.Set{}
	}
	m.users[u.ID] = u
	return u
}

func (m *mockUserRepo) Create(ctx context.Context, user *identity.User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return identity.ErrUserAlreadyExists
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*identity.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *mockUserRepo) Update(ctx context.Context, user *identity.User) error {
	if m.failUpdate {
		return identity.ErrUserNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	u, ok := m.users[id]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return identity.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) List(ctx context.Context, withAdmin bool) ([]*identity.User, error) {
	var out []*identity.User
	for _, u := range m.users {
		if !withAdmin && u.IsSuperadmin {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *mockUserRepo) ListByRole(ctx context.Context, slug string, withAdmin bool) ([]*identity.User, error) {
	var out []*identity.User
	for _, u := range m.users {
		if !withAdmin && u.IsSuperadmin {
			continue
		}
		if u.HasRole(slug) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *mockUserRepo) RecordLogin(ctx context.Context, id string) error {
	return nil
}

// mockRoleRepo is a simple in-memory implementation of RoleRepository
type mockRoleRepo struct {
	roles      map[string]*Role // by slug
	attached   map[string][]string
	failAttach bool
	failUpdate bool
}

func newMockRoleRepo() *mockRoleRepo {
	return &mockRoleRepo{
		roles:    make(map[string]*Role),
		attached: make(map[string][]string),
	}
}

func (m *mockRoleRepo) add(slug string, perms permission.Set) *Role {
	if perms == nil {
		perms = permission.Set{}
	}
	role := &Role{Slug: slug, Name: NameFromSlug(slug), Permissions: perms}
	m.roles[slug] = role
	return role
}

func (m *mockRoleRepo) Create(ctx context.Context, role *Role) error {
	if _, ok := m.roles[role.Slug]; ok {
		return ErrRoleAlreadyExists
	}
	m.roles[role.Slug] = role
	return nil
}

func (m *mockRoleRepo) GetBySlug(ctx context.Context, slug string) (*Role, error) {
	role, ok := m.roles[slug]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

func (m *mockRoleRepo) Update(ctx context.Context, role *Role) error {
	if m.failUpdate {
		return ErrRoleNotFound
	}
	m.roles[role.Slug] = role
	return nil
}

func (m *mockRoleRepo) Delete(ctx context.Context, slug string) error {
	if _, ok := m.roles[slug]; !ok {
		return ErrRoleNotFound
	}
	delete(m.roles, slug)
	return nil
}

func (m *mockRoleRepo) List(ctx context.Context) ([]*Role, error) {
	var out []*Role
	for _, role := range m.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (m *mockRoleRepo) AttachUser(ctx context.Context, slug, userID string) error {
	if m.failAttach {
		return ErrRoleNotFound
	}
	m.attached[slug] = append(m.attached[slug], userID)
	return nil
}

func (m *mockRoleRepo) DetachUser(ctx context.Context, slug, userID string) error {
	kept := m.attached[slug][:0]
	for _, id := range m.attached[slug] {
		if id != userID {
			kept = append(kept, id)
		}
	}
	m.attached[slug] = kept
	return nil
}
