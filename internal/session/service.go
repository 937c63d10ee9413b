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

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service manages session lifecycle on top of a Repository.
type Service struct {
	repo Repository

	// rememberLifetime applies to remembered logins; shortLifetime is
	// the browser-session window for remember=false logins.
	rememberLifetime time.Duration
	shortLifetime    time.Duration
}

// NewService creates a new session service
func NewService(repo Repository, rememberLifetime, shortLifetime time.Duration) *Service {
	return &Service{
		repo:             repo,
		rememberLifetime: rememberLifetime,
		shortLifetime:    shortLifetime,
	}
}

// Meta carries request-scoped metadata recorded on the session.
type Meta struct {
	IPAddress string
	UserAgent string
}

// Start creates a new session for the user.
func (s *Service) Start(ctx context.Context, userID string, remember bool, meta Meta) (*Session, error) {
	lifetime := s.shortLifetime
	if remember {
		lifetime = s.rememberLifetime
	}

	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		Remember:   remember,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		ExpiresAt:  now.Add(lifetime),
		CreatedAt:  now,
		LastSeenAt: now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// Get retrieves a live session. Expired sessions are deleted and
// reported as expired.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.IsExpired() {
		_ = s.repo.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	return sess, nil
}

// Refresh slides the session's last-seen time.
func (s *Service) Refresh(ctx context.Context, sessionID string) error {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	sess.LastSeenAt = time.Now()
	return s.repo.Update(ctx, sess)
}

// End deletes the session.
func (s *Service) End(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

// EndAll deletes every session the user holds.
func (s *Service) EndAll(ctx context.Context, userID string) error {
	return s.repo.DeleteByUserID(ctx, userID)
}
