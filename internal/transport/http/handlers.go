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

// Package http maps the HTTP surface onto the auth core: cookie
// sessions for the CMS backend, bearer tokens for the API, and an
// admin surface for user and role management.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cmskit/cmsauth/internal/auth"
	"github.com/cmskit/cmsauth/internal/authz"
	"github.com/cmskit/cmsauth/internal/identity"
	"github.com/cmskit/cmsauth/internal/oauth2"
	"github.com/cmskit/cmsauth/internal/session"
)

// Permission keys guarding the admin surface.
const (
	PermManageUsers = "auth.users.manage"
	PermManageRoles = "auth.roles.manage"
)

var validate = validator.New()

// Handler holds HTTP handlers and dependencies
type Handler struct {
	authn         *auth.Authenticator
	engine        *authz.Engine
	directory     *authz.Directory
	sessions      *session.Service
	tokens        *oauth2.Service
	sessionConfig SessionConfig
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName   string
	CookieDomain string
	CookiePath   string
	CookieSecure bool
}

// NewHandler creates a new HTTP handler
func NewHandler(
	authn *auth.Authenticator,
	engine *authz.Engine,
	directory *authz.Directory,
	sessions *session.Service,
	tokens *oauth2.Service,
	sessionConfig SessionConfig,
) *Handler {
	return &Handler{
		authn:         authn,
		engine:        engine,
		directory:     directory,
		sessions:      sessions,
		tokens:        tokens,
		sessionConfig: sessionConfig,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	// Credential and token endpoints are rate limited per IP
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(rateLimiter))
		r.Post("/api/v1/auth/login", h.Login)
		r.Post("/oauth/token", h.Token)
	})

	r.With(h.AuthMiddleware).Post("/oauth/revoke", h.Revoke)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/auth/logout", h.Logout)
			r.Get("/auth/me", h.Me)

			r.Route("/users", func(r chi.Router) {
				r.Use(h.RequirePermission(PermManageUsers))

				r.Get("/", h.ListUsers)
				r.Post("/", h.CreateUser)
				r.Get("/{username}", h.GetUser)
				r.Put("/{username}", h.UpdateUser)
				r.Delete("/{username}", h.DeleteUser)
				r.Put("/{username}/password", h.UpdatePassword)
				r.Post("/{username}/roles", h.AssignRoles)
				r.Delete("/{username}/roles/{slug}", h.UnassignRole)
				r.Post("/{username}/permissions/grant", h.GrantPermissions)
				r.Post("/{username}/permissions/revoke", h.RevokePermissions)
			})

			r.Route("/roles", func(r chi.Router) {
				r.Use(h.RequirePermission(PermManageRoles))

				r.Get("/", h.ListRoles)
				r.Post("/", h.CreateRole)
				r.Get("/{slug}", h.GetRole)
				r.Delete("/{slug}", h.DeleteRole)
				r.Post("/{slug}/permissions/grant", h.GrantRolePermissions)
				r.Post("/{slug}/permissions/revoke", h.RevokeRolePermissions)
			})

			r.With(h.RequirePermission(PermManageRoles)).
				Get("/permissions", h.ListPermissions)
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "cmsauth",
	})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Remember bool   `json:"remember"`
}

// Login authenticates the credentials and sets a session cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	meta := session.Meta{IPAddress: getIPAddress(r), UserAgent: r.UserAgent()}
	sess, ok := h.authn.Login(r.Context(), req.Username, req.Password, req.Remember, meta)
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.setSessionCookie(w, sess)

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  sess.UserID,
		"username": req.Username,
	})
}

// Logout destroys the current session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.authn.Logout(r.Context()) {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	h.clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}

// Me returns the current user with resolved effective permissions.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := h.authn.User(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	respondJSON(w, http.StatusOK, userPayload(h, r, user))
}

// CreateUserRequest represents user creation data
type CreateUserRequest struct {
	Username  string `json:"username" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CreateUser creates a new CMS user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	profile := identity.Profile{FirstName: req.FirstName, LastName: req.LastName}
	user, err := h.engine.CreateUser(r.Context(), req.Username, req.Password, profile)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "user already exists")
		default:
			respondError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"user_id":  user.ID,
		"username": user.Username(),
	})
}

// ListUsers lists users ordered by username.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	withAdmin := r.URL.Query().Get("with_admin") == "true"

	users, err := h.directory.Users(r.Context(), withAdmin)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	payload := make([]map[string]any, 0, len(users))
	for _, user := range users {
		payload = append(payload, userPayload(h, r, user))
	}

	respondJSON(w, http.StatusOK, map[string]any{"users": payload})
}

// GetUser returns a single user by username.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user := h.directory.UserByUsername(r.Context(), chi.URLParam(r, "username"))
	if user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondJSON(w, http.StatusOK, userPayload(h, r, user))
}

// UpdateUserRequest represents a partial user update; omitted fields
// are left unchanged.
type UpdateUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// UpdateUser applies a partial profile update.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	update := identity.Update{Email: req.Email, FirstName: req.FirstName, LastName: req.LastName}
	h.respondBool(w, h.engine.UpdateUser(r.Context(), chi.URLParam(r, "username"), update))
}

// DeleteUser removes a user. Superadmins cannot be deleted.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.respondBool(w, h.engine.DeleteUser(r.Context(), chi.URLParam(r, "username")))
}

// PasswordRequest carries a replacement password
type PasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

// UpdatePassword replaces a user's password.
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	h.respondBool(w, h.engine.UpdatePassword(r.Context(), chi.URLParam(r, "username"), req.Password))
}

// RolesRequest names one or more roles by slug
type RolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1"`
}

// AssignRoles assigns roles to a user.
func (h *Handler) AssignRoles(w http.ResponseWriter, r *http.Request) {
	var req RolesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user := h.directory.UserByUsername(r.Context(), chi.URLParam(r, "username"))
	if user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	h.respondBool(w, h.engine.Assign(r.Context(), user, req.Roles...))
}

// UnassignRole removes a role from a user.
func (h *Handler) UnassignRole(w http.ResponseWriter, r *http.Request) {
	user := h.directory.UserByUsername(r.Context(), chi.URLParam(r, "username"))
	if user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	// Unassign reports full success as false
	h.respondBool(w, !h.engine.Unassign(r.Context(), user, chi.URLParam(r, "slug")))
}

// PermissionsRequest names one or more permission keys
type PermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

// GrantPermissions grants user-level permissions.
func (h *Handler) GrantPermissions(w http.ResponseWriter, r *http.Request) {
	h.mutateUserPermissions(w, r, h.engine.GrantMany)
}

// RevokePermissions records user-level denies.
func (h *Handler) RevokePermissions(w http.ResponseWriter, r *http.Request) {
	h.mutateUserPermissions(w, r, h.engine.RevokeMany)
}

func (h *Handler) mutateUserPermissions(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, user *identity.User, perms []string) bool) {
	var req PermissionsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user := h.directory.UserByUsername(r.Context(), chi.URLParam(r, "username"))
	if user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	h.respondBool(w, op(r.Context(), user, req.Permissions))
}

// CreateRoleRequest represents role creation data
type CreateRoleRequest struct {
	Slug string `json:"slug" validate:"required"`
	Name string `json:"name"`
}

// CreateRole creates a new role. Duplicate slugs are rejected.
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if !h.engine.CreateRole(r.Context(), req.Slug, req.Name) {
		respondError(w, http.StatusConflict, "role already exists")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"slug": req.Slug})
}

// ListRoles lists role slugs.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	slugs, err := h.directory.RoleSlugs(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list roles")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"roles": slugs})
}

// GetRole returns a role with its permissions and members.
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	role := h.directory.Role(r.Context(), slug)
	if role == nil {
		respondError(w, http.StatusNotFound, "role not found")
		return
	}

	users, err := h.directory.UsersForRole(r.Context(), slug, true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list role members")
		return
	}

	members := make([]string, 0, len(users))
	for _, user := range users {
		members = append(members, user.Username())
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"slug":        role.Slug,
		"name":        role.DisplayName(),
		"permissions": role.Permissions.TruthyKeys(),
		"users":       members,
	})
}

// DeleteRole removes a role and its memberships.
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	h.respondBool(w, h.engine.RemoveRole(r.Context(), chi.URLParam(r, "slug")))
}

// GrantRolePermissions grants permissions to a role.
func (h *Handler) GrantRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req PermissionsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	h.respondBool(w, h.engine.GrantToRole(r.Context(), chi.URLParam(r, "slug"), req.Permissions...))
}

// RevokeRolePermissions records denies on a role.
func (h *Handler) RevokeRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req PermissionsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	h.respondBool(w, h.engine.RevokeFromRole(r.Context(), chi.URLParam(r, "slug"), req.Permissions...))
}

// ListPermissions returns every permission known to roles and users.
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.directory.AllPermissions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list permissions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

// Helper functions

func userPayload(h *Handler, r *http.Request, user *identity.User) map[string]any {
	return map[string]any{
		"user_id":     user.ID,
		"username":    user.Username(),
		"first_name":  user.FirstName,
		"last_name":   user.LastName,
		"is_admin":    user.IsAdmin(),
		"roles":       user.RoleSlugs,
		"permissions": h.directory.EffectivePermissions(r.Context(), user),
	}
}

func (h *Handler) respondBool(w http.ResponseWriter, ok bool) {
	if !ok {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]bool{"success": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sess.ID,
		Path:     h.sessionConfig.CookiePath,
		Domain:   h.sessionConfig.CookieDomain,
		Secure:   h.sessionConfig.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   h.sessionConfig.CookieName,
		Value:  "",
		Path:   h.sessionConfig.CookiePath,
		Domain: h.sessionConfig.CookieDomain,
		MaxAge: -1,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
