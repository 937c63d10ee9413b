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
	"fmt"
	"time"

	"github.com/cmskit/cmsauth/internal/audit"
	"github.com/cmskit/cmsauth/internal/permission"
	"github.com/google/uuid"
)

// Service is the credential verifier and registrar: it owns everything
// that touches a password hash, keeping the hashing scheme opaque to
// the rest of the core.
type Service struct {
	repo        UserRepository
	hasher      *PasswordHasher
	auditLogger audit.Logger
}

// NewService creates a new identity service
func NewService(repo UserRepository, hasher *PasswordHasher, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		hasher:      hasher,
		auditLogger: auditLogger,
	}
}

// Verify checks the username/password pair and returns the resolved
// user. Unknown users and wrong passwords both come back as
// ErrInvalidCredentials; callers cannot tell them apart.
func (s *Service) Verify(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.GetByEmail(ctx, username)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: username,
			Metadata: map[string]any{audit.AttrReason: "user_not_found"},
		})
		return nil, ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: username,
			Metadata: map[string]any{audit.AttrReason: "bad_password"},
		})
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Register creates a new user with the given credentials and profile.
// This is the one construction path that reports failure as an error
// rather than a boolean: the caller has no half-created user to fall
// back on.
func (s *Service) Register(ctx context.Context, username, password string, profile Profile) (*User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        username,
		PasswordHash: hash,
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		Permissions:  permission.Set{},
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user %q: %w", username, err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  user.ID,
		Resource: username,
	})

	return user, nil
}

// ChangePassword hashes and stores a new password for the user.
func (s *Service) ChangePassword(ctx context.Context, user *User, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordChanged,
		ActorID:  user.ID,
		Resource: user.Email,
	})

	return nil
}

// RecordLogin stamps the user's last login time. Stateless logins call
// this too: the login is not persisted as a session but it is recorded.
func (s *Service) RecordLogin(ctx context.Context, user *User) error {
	if err := s.repo.RecordLogin(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	now := time.Now()
	user.LastLoginAt = &now
	return nil
}
