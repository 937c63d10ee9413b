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

// Package auth implements the credential authenticator: session and
// stateless logins, forced logins for trusted internal flows, and
// logout. The authenticated identity travels on the request context;
// the authorization engine makes the permission decisions.
package auth

import (
	"context"
	"log/slog"

	"github.com/cmskit/cmsauth/internal/audit"
	"github.com/cmskit/cmsauth/internal/events"
	"github.com/cmskit/cmsauth/internal/identity"
	"github.com/cmskit/cmsauth/internal/observability/logger"
	"github.com/cmskit/cmsauth/internal/session"
)

// Authenticator verifies credentials and manages login state. All
// outcomes are boolean: a failed login is indistinguishable from an
// unknown user by design.
type Authenticator struct {
	verifier    *identity.Service
	sessions    *session.Service
	sink        events.Sink
	auditLogger audit.Logger
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(
	verifier *identity.Service,
	sessions *session.Service,
	sink events.Sink,
	auditLogger audit.Logger,
) *Authenticator {
	return &Authenticator{
		verifier:    verifier,
		sessions:    sessions,
		sink:        sink,
		auditLogger: auditLogger,
	}
}

// Check returns whether any identity is authenticated on this request.
func (a *Authenticator) Check(ctx context.Context) bool {
	return UserFromContext(ctx) != nil
}

// User returns the currently authenticated user, or nil.
func (a *Authenticator) User(ctx context.Context) *identity.User {
	return UserFromContext(ctx)
}

// Admin returns whether the currently authenticated user, if any, is a
// superadmin.
func (a *Authenticator) Admin(ctx context.Context) bool {
	user := UserFromContext(ctx)
	return user != nil && user.IsAdmin()
}

// Login verifies the credentials and establishes a session. remember
// controls the session's lifetime window. On failure no notification
// fires.
func (a *Authenticator) Login(ctx context.Context, username, password string, remember bool, meta session.Meta) (*session.Session, bool) {
	user, err := a.verifier.Verify(ctx, username, password)
	if err != nil {
		return nil, false
	}

	if err := a.verifier.RecordLogin(ctx, user); err != nil {
		slog.WarnContext(ctx, "failed to record login", logger.Username(username), logger.Error(err))
	}

	sess, err := a.sessions.Start(ctx, user.ID, remember, meta)
	if err != nil {
		slog.ErrorContext(ctx, "failed to start session", logger.Username(username), logger.Error(err))
		return nil, false
	}

	a.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeLoginSuccess,
		ActorID:   user.ID,
		Resource:  username,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	a.sink.UserLoggedIn(ctx, user.Username(), false, false)

	return sess, true
}

// Stateless verifies the credentials without establishing any session.
// The login is still recorded and the login notification still fires,
// flagged stateless.
func (a *Authenticator) Stateless(ctx context.Context, username, password string) bool {
	user, err := a.verifier.Verify(ctx, username, password)
	if err != nil {
		return false
	}

	// Still a login: no persistence wanted, but it is recorded
	if err := a.verifier.RecordLogin(ctx, user); err != nil {
		slog.WarnContext(ctx, "failed to record login", logger.Username(username), logger.Error(err))
	}

	a.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginStateless,
		ActorID:  user.ID,
		Resource: username,
	})
	a.sink.UserLoggedIn(ctx, user.Username(), true, false)

	return true
}

// ForceUser establishes a session for an already-resolved identity
// without re-checking credentials. For trusted internal flows only.
func (a *Authenticator) ForceUser(ctx context.Context, user *identity.User, remember bool, meta session.Meta) (*session.Session, bool) {
	if user == nil {
		return nil, false
	}

	if err := a.verifier.RecordLogin(ctx, user); err != nil {
		slog.WarnContext(ctx, "failed to record login", logger.Username(user.Username()), logger.Error(err))
	}

	sess, err := a.sessions.Start(ctx, user.ID, remember, meta)
	if err != nil {
		slog.ErrorContext(ctx, "failed to start session", logger.Username(user.Username()), logger.Error(err))
		return nil, false
	}

	a.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeLoginForced,
		ActorID:   user.ID,
		Resource:  user.Username(),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	a.sink.UserLoggedIn(ctx, user.Username(), false, true)

	return sess, true
}

// ForceUserStateless is a forced login with neither persistence nor
// login recording. The notification still fires, flagged both
// stateless and forced.
func (a *Authenticator) ForceUserStateless(ctx context.Context, user *identity.User) bool {
	if user == nil {
		return false
	}

	a.sink.UserLoggedIn(ctx, user.Username(), true, true)
	return true
}

// Logout ends the active session. Returns false when nobody is logged
// in or the session cannot be ended.
func (a *Authenticator) Logout(ctx context.Context) bool {
	user := UserFromContext(ctx)
	sess := SessionFromContext(ctx)
	if user == nil || sess == nil {
		return false
	}

	if err := a.sessions.End(ctx, sess.ID); err != nil {
		slog.ErrorContext(ctx, "failed to end session", logger.SessionID(sess.ID), logger.Error(err))
		return false
	}

	a.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLogout,
		ActorID:  user.ID,
		Resource: user.Username(),
	})
	a.sink.UserLoggedOut(ctx, user.Username())

	return true
}
