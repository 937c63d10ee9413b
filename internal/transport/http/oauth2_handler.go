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
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmskit/cmsauth/internal/oauth2"
)

// Token is the OAuth2 token endpoint (RFC 6749). Supported grants:
// password and refresh_token.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondOAuthError(w, "invalid_request", "invalid request")
		return
	}

	clientID := r.Form.Get("client_id")
	clientSecret := r.Form.Get("client_secret")

	// Support Basic Auth (RFC 6749 Section 2.3.1)
	if clientID == "" {
		username, password, ok := r.BasicAuth()
		if ok {
			clientID = username
			clientSecret = password
		}
	}

	var pair *oauth2.TokenPair
	var err error

	grantType := r.Form.Get("grant_type")
	switch grantType {
	case oauth2.GrantTypePassword:
		pair, err = h.tokens.Issue(r.Context(), clientID, clientSecret,
			r.Form.Get("username"), r.Form.Get("password"))
	case oauth2.GrantTypeRefresh:
		pair, err = h.tokens.Refresh(r.Context(), clientID, clientSecret,
			r.Form.Get("refresh_token"))
	default:
		err = oauth2.ErrUnsupportedGrantType
	}

	if err != nil {
		slog.ErrorContext(r.Context(), "token request failed", "error", err, "grant_type", grantType)
		switch {
		case errors.Is(err, oauth2.ErrUnsupportedGrantType):
			respondOAuthError(w, "unsupported_grant_type", "unsupported grant_type")
		case errors.Is(err, oauth2.ErrInvalidClient):
			respondOAuthError(w, "invalid_client", "invalid client credentials")
		case errors.Is(err, oauth2.ErrInvalidGrant):
			respondOAuthError(w, "invalid_grant", "invalid grant")
		default:
			respondOAuthError(w, "server_error", "internal server error")
		}
		return
	}

	// Prevent caching (RFC 6749 Section 5.1)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	respondJSON(w, http.StatusOK, pair)
}

// Revoke is the token revocation endpoint (RFC 7009). The caller may
// only revoke its own active access token or a refresh token linked to
// it; anything else is a silent no-op. Per the RFC the response is
// 200 either way.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondOAuthError(w, "invalid_request", "invalid request")
		return
	}

	token := r.Form.Get("token")
	if token == "" {
		respondOAuthError(w, "invalid_request", "missing token")
		return
	}

	switch r.Form.Get("token_type_hint") {
	case "refresh_token":
		h.tokens.RevokeRefreshToken(r.Context(), token)
	case "access_token", "":
		if !h.tokens.RevokeAccessToken(r.Context(), token) {
			// The hint may be wrong (RFC 7009 Section 2.1); fall back
			// to treating it as a refresh token
			h.tokens.RevokeRefreshToken(r.Context(), token)
		}
	default:
		respondOAuthError(w, "unsupported_token_type", "unsupported token_type_hint")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// respondOAuthError writes an RFC 6749 Section 5.2 error body.
func respondOAuthError(w http.ResponseWriter, code, description string) {
	status := http.StatusBadRequest
	if code == "invalid_client" {
		status = http.StatusUnauthorized
	}
	if code == "server_error" {
		status = http.StatusInternalServerError
	}

	respondJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
