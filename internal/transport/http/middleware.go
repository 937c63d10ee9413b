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

package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cmskit/cmsauth/internal/auth"
	"github.com/cmskit/cmsauth/internal/oauth2"
	"github.com/cmskit/cmsauth/internal/observability/logger"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware resolves the caller's identity from the session
// cookie or, failing that, a bearer token. Unauthenticated requests
// are rejected.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctx, ok := h.authenticateSession(w, r); ok {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if ctx, ok := h.authenticateBearer(r); ok {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		respondError(w, http.StatusUnauthorized, "not authenticated")
	})
}

func (h *Handler) authenticateSession(w http.ResponseWriter, r *http.Request) (ctx context.Context, ok bool) {
	sessionID := h.getSessionFromCookie(r)
	if sessionID == "" {
		return nil, false
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		h.clearSessionCookie(w)
		return nil, false
	}

	user := h.directory.UserByID(r.Context(), sess.UserID)
	if user == nil {
		h.clearSessionCookie(w)
		return nil, false
	}

	// Slide the last-seen window; failures don't block the request
	if err := h.sessions.Refresh(r.Context(), sessionID); err != nil {
		slog.ErrorContext(r.Context(), "failed to refresh session", logger.Error(err))
	}

	ctx = auth.WithUser(r.Context(), user)
	ctx = auth.WithSession(ctx, sess)
	return ctx, true
}

func (h *Handler) authenticateBearer(r *http.Request) (ctx context.Context, ok bool) {
	header := r.Header.Get("Authorization")
	tokenID, found := strings.CutPrefix(header, "Bearer ")
	if !found || tokenID == "" {
		return nil, false
	}

	token, err := h.tokens.ValidateAccessToken(r.Context(), tokenID)
	if err != nil {
		return nil, false
	}

	user := h.directory.UserByID(r.Context(), token.UserID)
	if user == nil {
		return nil, false
	}

	ctx = auth.WithUser(r.Context(), user)
	ctx = oauth2.WithActiveToken(ctx, token)
	return ctx, true
}

// RequirePermission rejects callers whose effective permissions do not
// cover every named permission. Superadmins pass unconditionally.
func (h *Handler) RequirePermission(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.UserFromContext(r.Context())
			if !h.engine.Can(r.Context(), user, permissions...) {
				respondError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
