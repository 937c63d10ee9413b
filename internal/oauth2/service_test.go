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

package oauth2

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmskit/cmsauth/internal/audit"
	"github.com/cmskit/cmsauth/internal/identity"
	"github.com/cmskit/cmsauth/internal/permission"
)

type memAccessRepo struct {
	tokens map[string]*AccessToken
}

func (r *memAccessRepo) Create(ctx context.Context, token *AccessToken) error {
	r.tokens[token.ID] = token
	return nil
}

func (r *memAccessRepo) GetByID(ctx context.Context, id string) (*AccessToken, error) {
	token, ok := r.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return token, nil
}

func (r *memAccessRepo) Revoke(ctx context.Context, id string) error {
	token, ok := r.tokens[id]
	if !ok {
		return ErrTokenNotFound
	}
	token.Revoked = true
	return nil
}

func (r *memAccessRepo) DeleteExpired(ctx context.Context) error {
	for id, token := range r.tokens {
		if token.IsExpired() {
			delete(r.tokens, id)
		}
	}
	return nil
}

type memRefreshRepo struct {
	tokens map[string]*RefreshToken
}

func (r *memRefreshRepo) Create(ctx context.Context, token *RefreshToken) error {
	r.tokens[token.ID] = token
	return nil
}

func (r *memRefreshRepo) GetByID(ctx context.Context, id string) (*RefreshToken, error) {
	token, ok := r.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return token, nil
}

func (r *memRefreshRepo) Revoke(ctx context.Context, id string) error {
	token, ok := r.tokens[id]
	if !ok {
		return ErrTokenNotFound
	}
	token.Revoked = true
	return nil
}

func (r *memRefreshRepo) DeleteExpired(ctx context.Context) error {
	for id, token := range r.tokens {
		if token.IsExpired() {
			delete(r.tokens, id)
		}
	}
	return nil
}

type memUserRepo struct {
	users map[string]*identity.User
}

func (r *memUserRepo) Create(ctx context.Context, user *identity.User) error {
	r.users[user.Email] = user
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*identity.User, error) {
	for _, user := range r.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	user, ok := r.users[email]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return user, nil
}

func (r *memUserRepo) Update(ctx context.Context, user *identity.User) error { return nil }

func (r *memUserRepo) UpdatePassword(ctx context.Context, id, hash string) error { return nil }

func (r *memUserRepo) Delete(ctx context.Context, id string) error { return nil }

func (r *memUserRepo) List(ctx context.Context, withAdmin bool) ([]*identity.User, error) {
	return nil, nil
}

func (r *memUserRepo) ListByRole(ctx context.Context, slug string, withAdmin bool) ([]*identity.User, error) {
	return nil, nil
}

func (r *memUserRepo) RecordLogin(ctx context.Context, id string) error { return nil }

type tokenFixture struct {
	svc     *Service
	access  *memAccessRepo
	refresh *memRefreshRepo
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()

	users := &memUserRepo{users: make(map[string]*identity.User)}
	hasher := identity.NewPasswordHasher(8*1024, 1, 1, 16, 32)
	hash, err := hasher.Hash("s3cret")
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), &identity.User{
		ID:           "u1",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Permissions:  permission.Set{},
	}))

	verifier := identity.NewService(users, hasher, audit.NewSlogLogger())
	access := &memAccessRepo{tokens: make(map[string]*AccessToken)}
	refresh := &memRefreshRepo{tokens: make(map[string]*RefreshToken)}

	svc := NewService(verifier, access, refresh, audit.NewSlogLogger(), time.Hour, 30*24*time.Hour)
	svc.RegisterClient("cms", "cms-secret")

	return &tokenFixture{svc: svc, access: access, refresh: refresh}
}

func TestIssue(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	pair, err := f.svc.Issue(ctx, "cms", "cms-secret", "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, 3600, pair.ExpiresIn)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	access, err := f.access.GetByID(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", access.UserID)
	assert.Equal(t, "cms", access.ClientID)
	assert.False(t, access.Revoked)

	refresh, err := f.refresh.GetByID(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.AccessToken, refresh.AccessTokenID)
	require.NotNil(t, refresh.ExpiresAt)
}

func TestIssueRejections(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	_, err := f.svc.Issue(ctx, "cms", "wrong-secret", "alice@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidClient)

	_, err = f.svc.Issue(ctx, "unknown", "cms-secret", "alice@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidClient)

	// Bad password and unknown user both come back as invalid grant
	_, err = f.svc.Issue(ctx, "cms", "cms-secret", "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidGrant)
	_, err = f.svc.Issue(ctx, "cms", "cms-secret", "nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidGrant)

	assert.Empty(t, f.access.tokens)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	pair, err := f.svc.Issue(ctx, "cms", "cms-secret", "alice@example.com", "s3cret")
	require.NoError(t, err)

	fresh, err := f.svc.Refresh(ctx, "cms", "cms-secret", pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, fresh.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, fresh.RefreshToken)

	// The new pair carries the same identity; nothing was revoked
	access, err := f.access.GetByID(ctx, fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", access.UserID)

	old, err := f.refresh.GetByID(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.False(t, old.Revoked)
}

func TestRefreshRejections(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	pair, err := f.svc.Issue(ctx, "cms", "cms-secret", "alice@example.com", "s3cret")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, "cms", "wrong-secret", pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidClient)

	_, err = f.svc.Refresh(ctx, "cms", "cms-secret", "missing")
	assert.ErrorIs(t, err, ErrInvalidGrant)

	require.NoError(t, f.refresh.Revoke(ctx, pair.RefreshToken))
	_, err = f.svc.Refresh(ctx, "cms", "cms-secret", pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestRefreshExpired(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	pair, err := f.svc.Issue(ctx, "cms", "cms-secret", "alice@example.com", "s3cret")
	require.NoError(t, err)

	rt, err := f.refresh.GetByID(ctx, pair.RefreshToken)
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	rt.ExpiresAt = &past

	_, err = f.svc.Refresh(ctx, "cms", "cms-secret", pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestRevokeAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	pair, err := f.svc.Issue(ctx, "cms", "cms-secret", "alice@example.com", "s3cret")
	require.NoError(t, err)
	other, err := f.svc.Issue(ctx, "cms", "cms-secret", "alice@example.com", "s3cret")
	require.NoError(t, err)

	active, err := f.access.GetByID(ctx, pair.AccessToken)
	require.NoError(t, err)
	authed := WithActiveToken(ctx, active)

	// Only the active token itself may be revoked
	assert.False(t, f.svc.RevokeAccessToken(authed, other.AccessToken))
	untouched, err := f.access.GetByID(ctx, other.AccessToken)
	require.NoError(t, err)
	assert.False(t, untouched.Revoked)

	assert.True(t, f.svc.RevokeAccessToken(authed, pair.AccessToken))
	revoked, err := f.access.GetByID(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)

	// Revoking again is still a success
	assert.True(t, f.svc.RevokeAccessToken(authed, pair.AccessToken))

	// No active token on the context
	assert.False(t, f.svc.RevokeAccessToken(ctx, pair.AccessToken))
}

func TestRevokeRefreshToken(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	pair, err := f.svc.Issue(ctx, "cms", "cms-secret", "alice@example.com", "s3cret")
	require.NoError(t, err)
	other, err := f.svc.Issue(ctx, "cms", "cms-secret", "alice@example.com", "s3cret")
	require.NoError(t, err)

	active, err := f.access.GetByID(ctx, pair.AccessToken)
	require.NoError(t, err)
	authed := WithActiveToken(ctx, active)

	// A refresh token linked to someone else's access token is left
	// alone, indistinguishably from an unknown token
	assert.False(t, f.svc.RevokeRefreshToken(authed, other.RefreshToken))
	untouched, err := f.refresh.GetByID(ctx, other.RefreshToken)
	require.NoError(t, err)
	assert.False(t, untouched.Revoked)

	assert.False(t, f.svc.RevokeRefreshToken(authed, "missing"))

	assert.True(t, f.svc.RevokeRefreshToken(authed, pair.RefreshToken))
	revoked, err := f.refresh.GetByID(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)

	// Idempotent
	assert.True(t, f.svc.RevokeRefreshToken(authed, pair.RefreshToken))
}

func TestValidateAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture(t)

	pair, err := f.svc.Issue(ctx, "cms", "cms-secret", "alice@example.com", "s3cret")
	require.NoError(t, err)

	token, err := f.svc.ValidateAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", token.UserID)

	_, err = f.svc.ValidateAccessToken(ctx, "missing")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, f.access.Revoke(ctx, pair.AccessToken))
	_, err = f.svc.ValidateAccessToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	expired := &AccessToken{ID: "old", UserID: "u1", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, f.access.Create(ctx, expired))
	_, err = f.svc.ValidateAccessToken(ctx, "old")
	assert.ErrorIs(t, err, ErrTokenExpired)
}
