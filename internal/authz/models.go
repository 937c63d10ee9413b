package authz

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/cmskit/cmsauth/internal/permission"
)

// Domain errors
var (
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleAlreadyExists = errors.New("role already exists")
)

// Role represents a named bundle of permissions assignable to multiple
// users. The slug is the stable key and is never auto-renamed.
type Role struct {
	Slug        string
	Name        string
	Permissions permission.Set
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayName returns the role's name, deriving it from the slug when
// none was stored.
func (r *Role) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return NameFromSlug(r.Slug)
}

// NameFromSlug converts a role slug to a displayable name: dots become
// spaces and only the first character is capitalized, so
// "content.editor" becomes "Content editor".
func NameFromSlug(slug string) string {
	name := strings.ReplaceAll(slug, ".", " ")
	if name == "" {
		return name
	}
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// RoleRepository defines the interface for role persistence. The
// membership join is owned here: users are attached to and detached
// from roles, mirroring where the relation lives in the schema.
type RoleRepository interface {
	// Create creates a new role. Returns ErrRoleAlreadyExists on a
	// duplicate slug.
	Create(ctx context.Context, role *Role) error

	// GetBySlug retrieves a role by its slug
	GetBySlug(ctx context.Context, slug string) (*Role, error)

	// Update persists permission-map changes
	Update(ctx context.Context, role *Role) error

	// Delete removes a role and its memberships
	Delete(ctx context.Context, slug string) error

	// List retrieves all roles ordered by slug
	List(ctx context.Context) ([]*Role, error)

	// AttachUser adds a user to the role's membership
	AttachUser(ctx context.Context, slug, userID string) error

	// DetachUser removes a user from the role's membership
	DetachUser(ctx context.Context, slug, userID string) error
}
