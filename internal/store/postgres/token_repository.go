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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cmskit/cmsauth/internal/oauth2"
)

// AccessTokenRepository implements oauth2.AccessTokenRepository
type AccessTokenRepository struct {
	db *DB
}

// NewAccessTokenRepository creates a new access token repository
func NewAccessTokenRepository(db *DB) *AccessTokenRepository {
	return &AccessTokenRepository{db: db}
}

// Create stores a new access token
func (r *AccessTokenRepository) Create(ctx context.Context, token *oauth2.AccessToken) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO oauth_access_tokens (id, user_id, client_id, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, token.ID, token.UserID, token.ClientID, token.ExpiresAt, token.Revoked, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create access token: %w", err)
	}

	return nil
}

// GetByID retrieves an access token by its token string
func (r *AccessTokenRepository) GetByID(ctx context.Context, id string) (*oauth2.AccessToken, error) {
	var token oauth2.AccessToken
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, client_id, expires_at, revoked, created_at
		FROM oauth_access_tokens
		WHERE id = $1
	`, id).Scan(
		&token.ID, &token.UserID, &token.ClientID,
		&token.ExpiresAt, &token.Revoked, &token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	return &token, nil
}

// Revoke flips the revoked flag. Revoking a revoked token succeeds.
func (r *AccessTokenRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE oauth_access_tokens SET revoked = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}

	if result.RowsAffected() == 0 {
		return oauth2.ErrTokenNotFound
	}

	return nil
}

// DeleteExpired removes all expired access tokens
func (r *AccessTokenRepository) DeleteExpired(ctx context.Context) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM oauth_access_tokens WHERE expires_at < $1
	`, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete expired access tokens: %w", err)
	}

	return nil
}

// RefreshTokenRepository implements oauth2.RefreshTokenRepository
type RefreshTokenRepository struct {
	db *DB
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token
func (r *RefreshTokenRepository) Create(ctx context.Context, token *oauth2.RefreshToken) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO oauth_refresh_tokens (id, access_token_id, revoked, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, token.ID, token.AccessTokenID, token.Revoked, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	return nil
}

// GetByID retrieves a refresh token by its token string
func (r *RefreshTokenRepository) GetByID(ctx context.Context, id string) (*oauth2.RefreshToken, error) {
	var token oauth2.RefreshToken
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, access_token_id, revoked, expires_at, created_at
		FROM oauth_refresh_tokens
		WHERE id = $1
	`, id).Scan(
		&token.ID, &token.AccessTokenID, &token.Revoked,
		&token.ExpiresAt, &token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return &token, nil
}

// Revoke flips the revoked flag. Revoking a revoked token succeeds.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE oauth_refresh_tokens SET revoked = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	if result.RowsAffected() == 0 {
		return oauth2.ErrTokenNotFound
	}

	return nil
}

// DeleteExpired removes all expired refresh tokens
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM oauth_refresh_tokens WHERE expires_at IS NOT NULL AND expires_at < $1
	`, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}

	return nil
}
