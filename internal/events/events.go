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

// Package events defines the notification sink the auth core emits into.
// Notifications are fire-and-forget: no return value is consumed and a
// slow or failing sink must not affect the operation that fired it.
package events

import (
	"context"
	"log/slog"
	"sync"
)

// Sink receives the four notification kinds emitted by the auth core.
type Sink interface {
	// UserLoggedIn fires after any successful login. stateless marks
	// logins that established no session; forced marks logins that
	// bypassed credential verification.
	UserLoggedIn(ctx context.Context, username string, stateless, forced bool)

	// UserLoggedOut fires after a successful logout.
	UserLoggedOut(ctx context.Context, username string)

	// UserPermissionsChanged fires after a user's roles or own
	// permission map changed.
	UserPermissionsChanged(ctx context.Context, username string)

	// RolesChanged fires after any role was created, deleted, or had
	// its permission map changed.
	RolesChanged(ctx context.Context)
}

// SlogSink logs every notification through the global slog logger.
type SlogSink struct{}

// NewSlogSink creates a slog-backed notification sink.
func NewSlogSink() *SlogSink {
	return &SlogSink{}
}

func (s *SlogSink) UserLoggedIn(ctx context.Context, username string, stateless, forced bool) {
	slog.InfoContext(ctx, "user_logged_in",
		slog.String("username", username),
		slog.Bool("stateless", stateless),
		slog.Bool("forced", forced),
		slog.String("component", "events"),
	)
}

func (s *SlogSink) UserLoggedOut(ctx context.Context, username string) {
	slog.InfoContext(ctx, "user_logged_out",
		slog.String("username", username),
		slog.String("component", "events"),
	)
}

func (s *SlogSink) UserPermissionsChanged(ctx context.Context, username string) {
	slog.InfoContext(ctx, "user_permissions_changed",
		slog.String("username", username),
		slog.String("component", "events"),
	)
}

func (s *SlogSink) RolesChanged(ctx context.Context) {
	slog.InfoContext(ctx, "roles_changed",
		slog.String("component", "events"),
	)
}

// Login records a captured UserLoggedIn notification.
type Login struct {
	Username  string
	Stateless bool
	Forced    bool
}

// RecordingSink captures notifications for tests.
type RecordingSink struct {
	mu sync.Mutex

	Logins             []Login
	Logouts            []string
	PermissionsChanged []string
	RolesChangedCount  int
}

// NewRecordingSink creates an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) UserLoggedIn(ctx context.Context, username string, stateless, forced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Logins = append(s.Logins, Login{Username: username, Stateless: stateless, Forced: forced})
}

func (s *RecordingSink) UserLoggedOut(ctx context.Context, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Logouts = append(s.Logouts, username)
}

func (s *RecordingSink) UserPermissionsChanged(ctx context.Context, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PermissionsChanged = append(s.PermissionsChanged, username)
}

func (s *RecordingSink) RolesChanged(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RolesChangedCount++
}
