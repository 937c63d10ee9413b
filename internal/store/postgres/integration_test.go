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

//go:build integration
// +build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cmskit/cmsauth/internal/authz"
	"github.com/cmskit/cmsauth/internal/identity"
	"github.com/cmskit/cmsauth/internal/oauth2"
	"github.com/cmskit/cmsauth/internal/permission"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	cfg := Config{
		Host:         envOr("CMSAUTH_DB_HOST", "localhost"),
		Port:         envOr("CMSAUTH_DB_PORT", "5432"),
		User:         envOr("CMSAUTH_DB_USER", "cmsauth"),
		Password:     envOr("CMSAUTH_DB_PASSWORD", "cmsauth_dev_password"),
		Database:     envOr("CMSAUTH_DB_NAME", "cmsauth"),
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 5,
	}

	db, err := New(context.Background(), cfg)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to database: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(context.Background(), InitialSchema); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestUserRoleRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	users := NewUserRepository(db)
	roles := NewRoleRepository(db)

	user := &identity.User{
		ID:           uuid.NewString(),
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		Permissions:  permission.Set{"content.create": true, "content.delete": false},
	}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	slug := "editor-" + uuid.NewString()
	role := &authz.Role{Slug: slug, Name: "Editor", Permissions: permission.Set{"content.edit": true}}
	if err := roles.Create(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := roles.AttachUser(ctx, slug, user.ID); err != nil {
		t.Fatalf("attach user: %v", err)
	}

	got, err := users.GetByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !got.HasRole(slug) {
		t.Errorf("expected user to hold role %s, got %v", slug, got.RoleSlugs)
	}
	if !got.Permissions["content.create"] || got.Permissions["content.delete"] {
		t.Errorf("permission map not preserved: %v", got.Permissions)
	}

	if err := roles.DetachUser(ctx, slug, user.ID); err != nil {
		t.Fatalf("detach user: %v", err)
	}
	got, err = users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.HasRole(slug) {
		t.Errorf("expected role detached, got %v", got.RoleSlugs)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	users := NewUserRepository(db)
	access := NewAccessTokenRepository(db)
	refresh := NewRefreshTokenRepository(db)

	user := &identity.User{
		ID:           uuid.NewString(),
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		Permissions:  permission.Set{},
	}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	at := &oauth2.AccessToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ClientID:  "cms",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := access.Create(ctx, at); err != nil {
		t.Fatalf("create access token: %v", err)
	}

	rt := &oauth2.RefreshToken{
		ID:            uuid.NewString(),
		AccessTokenID: at.ID,
		CreatedAt:     time.Now(),
	}
	if err := refresh.Create(ctx, rt); err != nil {
		t.Fatalf("create refresh token: %v", err)
	}

	if err := access.Revoke(ctx, at.ID); err != nil {
		t.Fatalf("revoke access token: %v", err)
	}
	got, err := access.GetByID(ctx, at.ID)
	if err != nil {
		t.Fatalf("get access token: %v", err)
	}
	if !got.Revoked {
		t.Error("expected access token revoked")
	}

	// Revoking again still succeeds
	if err := access.Revoke(ctx, at.ID); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	gotRT, err := refresh.GetByID(ctx, rt.ID)
	if err != nil {
		t.Fatalf("get refresh token: %v", err)
	}
	if gotRT.ExpiresAt != nil {
		t.Errorf("expected nil expiry, got %v", gotRT.ExpiresAt)
	}
}
