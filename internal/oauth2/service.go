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

// Package oauth2 issues and revokes opaque bearer tokens. Tokens are
// random strings stored by value; validation and revocation are
// database lookups, which keeps every token revocable immediately.
package oauth2

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/cmskit/cmsauth/internal/audit"
	"github.com/cmskit/cmsauth/internal/identity"
)

// Service provides token issuance, refresh, and revocation.
type Service struct {
	verifier    *identity.Service
	accessRepo  AccessTokenRepository
	refreshRepo RefreshTokenRepository
	auditLogger audit.Logger

	// clients maps client_id to the SHA-256 hash of its secret.
	// Clients are registered from configuration at startup.
	clients map[string][]byte

	accessTokenLifetime  time.Duration
	refreshTokenLifetime time.Duration // zero means refresh tokens never expire
}

// NewService creates a new OAuth2 token service
func NewService(
	verifier *identity.Service,
	accessRepo AccessTokenRepository,
	refreshRepo RefreshTokenRepository,
	auditLogger audit.Logger,
	accessTokenLifetime, refreshTokenLifetime time.Duration,
) *Service {
	return &Service{
		verifier:             verifier,
		accessRepo:           accessRepo,
		refreshRepo:          refreshRepo,
		auditLogger:          auditLogger,
		clients:              make(map[string][]byte),
		accessTokenLifetime:  accessTokenLifetime,
		refreshTokenLifetime: refreshTokenLifetime,
	}
}

// RegisterClient registers a client_id/secret pair. Only the secret's
// hash is retained.
func (s *Service) RegisterClient(clientID, clientSecret string) {
	hash := sha256.Sum256([]byte(clientSecret))
	s.clients[clientID] = hash[:]
}

// TokenPair is the token endpoint response shape (RFC 6749 Section 5.1).
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// validateClient authenticates a client (RFC 6749 Section 3.2.1).
func (s *Service) validateClient(clientID, clientSecret string) error {
	stored, ok := s.clients[clientID]
	if !ok {
		return ErrInvalidClient
	}

	supplied := sha256.Sum256([]byte(clientSecret))
	if subtle.ConstantTimeCompare(stored, supplied[:]) != 1 {
		return ErrInvalidClient
	}

	return nil
}

// Issue handles the password grant: verifies the credentials and mints
// an access/refresh token pair. Bad credentials surface as
// ErrInvalidGrant; the caller cannot tell an unknown user from a wrong
// password.
func (s *Service) Issue(ctx context.Context, clientID, clientSecret, username, password string) (*TokenPair, error) {
	if err := s.validateClient(clientID, clientSecret); err != nil {
		return nil, err
	}

	user, err := s.verifier.Verify(ctx, username, password)
	if err != nil {
		return nil, ErrInvalidGrant
	}

	// The login stamp is best-effort; issuance does not fail on it
	_ = s.verifier.RecordLogin(ctx, user)

	pair, access, err := s.mintPair(ctx, user.ID, clientID)
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  user.ID,
		Resource: username,
		Metadata: map[string]any{
			audit.AttrClientID: clientID,
			audit.AttrTokenID:  access.ID,
		},
	})

	return pair, nil
}

// Refresh handles the refresh_token grant (RFC 6749 Section 6): a live
// refresh token buys a fresh access/refresh pair. Nothing is revoked;
// revoked or expired refresh tokens are rejected.
func (s *Service) Refresh(ctx context.Context, clientID, clientSecret, refreshTokenID string) (*TokenPair, error) {
	if err := s.validateClient(clientID, clientSecret); err != nil {
		return nil, err
	}

	rt, err := s.refreshRepo.GetByID(ctx, refreshTokenID)
	if err != nil {
		return nil, ErrInvalidGrant
	}
	if rt.Revoked || rt.IsExpired() {
		return nil, ErrInvalidGrant
	}

	// The linked access token carries the identity the pair was minted for
	access, err := s.accessRepo.GetByID(ctx, rt.AccessTokenID)
	if err != nil {
		return nil, ErrInvalidGrant
	}

	pair, fresh, err := s.mintPair(ctx, access.UserID, clientID)
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRefreshed,
		ActorID:  access.UserID,
		Metadata: map[string]any{
			audit.AttrClientID: clientID,
			audit.AttrTokenID:  fresh.ID,
		},
	})

	return pair, nil
}

// mintPair creates and stores a linked access/refresh token pair.
func (s *Service) mintPair(ctx context.Context, userID, clientID string) (*TokenPair, *AccessToken, error) {
	now := time.Now()
	access := &AccessToken{
		ID:        newToken(),
		UserID:    userID,
		ClientID:  clientID,
		ExpiresAt: now.Add(s.accessTokenLifetime),
		CreatedAt: now,
	}
	if err := s.accessRepo.Create(ctx, access); err != nil {
		return nil, nil, err
	}

	refresh := &RefreshToken{
		ID:            newToken(),
		AccessTokenID: access.ID,
		CreatedAt:     now,
	}
	if s.refreshTokenLifetime > 0 {
		expiry := now.Add(s.refreshTokenLifetime)
		refresh.ExpiresAt = &expiry
	}
	if err := s.refreshRepo.Create(ctx, refresh); err != nil {
		return nil, nil, err
	}

	return &TokenPair{
		AccessToken:  access.ID,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.accessTokenLifetime.Seconds()),
		RefreshToken: refresh.ID,
	}, access, nil
}

// RevokeAccessToken revokes the supplied access token, but only when
// it is the token the current request authenticated with. A caller
// cannot revoke an arbitrary token by guessing its id. Revoking an
// already-revoked token succeeds.
func (s *Service) RevokeAccessToken(ctx context.Context, tokenID string) bool {
	active := ActiveTokenFromContext(ctx)
	if active == nil || active.ID != tokenID {
		return false
	}

	if err := s.accessRepo.Revoke(ctx, tokenID); err != nil {
		return false
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRevoked,
		ActorID:  active.UserID,
		Metadata: map[string]any{audit.AttrTokenID: tokenID},
	})

	return true
}

// RevokeRefreshToken revokes a refresh token when its linked access
// token is the one the current request authenticated with. An
// ownership mismatch is a silent no-op, indistinguishable from an
// unknown token.
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshTokenID string) bool {
	active := ActiveTokenFromContext(ctx)
	if active == nil {
		return false
	}

	rt, err := s.refreshRepo.GetByID(ctx, refreshTokenID)
	if err != nil {
		return false
	}
	if rt.AccessTokenID != active.ID {
		return false
	}

	if err := s.refreshRepo.Revoke(ctx, refreshTokenID); err != nil {
		return false
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRevoked,
		ActorID:  active.UserID,
		Metadata: map[string]any{audit.AttrTokenID: refreshTokenID},
	})

	return true
}

// ValidateAccessToken resolves a bearer token for the API boundary.
func (s *Service) ValidateAccessToken(ctx context.Context, tokenID string) (*AccessToken, error) {
	token, err := s.accessRepo.GetByID(ctx, tokenID)
	if err != nil {
		return nil, ErrTokenNotFound
	}

	if token.Revoked {
		return nil, ErrTokenRevoked
	}

	if token.IsExpired() {
		return nil, ErrTokenExpired
	}

	return token, nil
}

func newToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
