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

package auth

import (
	"context"

	"github.com/cmskit/cmsauth/internal/identity"
	"github.com/cmskit/cmsauth/internal/session"
)

type contextKey int

const (
	userKey contextKey = iota
	sessionKey
)

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *identity.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated user, or nil.
func UserFromContext(ctx context.Context) *identity.User {
	if user, ok := ctx.Value(userKey).(*identity.User); ok {
		return user
	}
	return nil
}

// WithSession returns a context carrying the active session.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext retrieves the active session, or nil.
func SessionFromContext(ctx context.Context) *session.Session {
	if sess, ok := ctx.Value(sessionKey).(*session.Session); ok {
		return sess
	}
	return nil
}
