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
	"errors"
	"time"
)

// Domain errors
var (
	ErrTokenNotFound        = errors.New("token not found")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrInvalidClient        = errors.New("invalid client credentials")
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
)

// Grant types accepted at the token endpoint.
const (
	GrantTypePassword = "password"
	GrantTypeRefresh  = "refresh_token"
)

// AccessToken is an opaque bearer token. The ID is the token string
// itself; there is no separate surrogate key.
type AccessToken struct {
	ID        string
	UserID    string
	ClientID  string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// IsExpired checks if the access token has expired
func (t *AccessToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// RefreshToken is linked 1:1 to the access token it was minted
// alongside. A nil ExpiresAt means the token never expires on its own.
type RefreshToken struct {
	ID            string
	AccessTokenID string
	Revoked       bool
	ExpiresAt     *time.Time
	CreatedAt     time.Time
}

// IsExpired checks if the refresh token has expired
func (t *RefreshToken) IsExpired() bool {
	return t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt)
}

// AccessTokenRepository defines the interface for access token persistence
type AccessTokenRepository interface {
	// Create stores a new access token
	Create(ctx context.Context, token *AccessToken) error

	// GetByID retrieves an access token by its token string
	GetByID(ctx context.Context, id string) (*AccessToken, error)

	// Revoke flips the revoked flag; revoking a revoked token is a no-op
	Revoke(ctx context.Context, id string) error

	// DeleteExpired removes all expired access tokens
	DeleteExpired(ctx context.Context) error
}

// RefreshTokenRepository defines the interface for refresh token persistence
type RefreshTokenRepository interface {
	// Create stores a new refresh token
	Create(ctx context.Context, token *RefreshToken) error

	// GetByID retrieves a refresh token by its token string
	GetByID(ctx context.Context, id string) (*RefreshToken, error)

	// Revoke flips the revoked flag; revoking a revoked token is a no-op
	Revoke(ctx context.Context, id string) error

	// DeleteExpired removes all expired refresh tokens
	DeleteExpired(ctx context.Context) error
}
