package rbac

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("rbac: invalid input")
	ErrNotFound     = errors.New("rbac: not found")
	ErrConflict     = errors.New("rbac: resource conflict")
)

// User is the business-entity account record. It shares its id with exactly
// one identity row holding the same email.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	Roles     []string  `json:"roles"`
}

// UserView is the API projection of a User. The system-admin flag is derived
// from configuration at read time, never stored.
type UserView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	Roles         []string  `json:"roles"`
	IsSystemAdmin bool      `json:"is_system_admin"`
}

// Role groups permissions.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission is a named capability attached to roles.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserStore manages business users and their role links.
type UserStore interface {
	Add(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error

	// AddRole and RemoveRole mutate the user_roles link table with set
	// semantics: adding an existing pair or removing a missing one is a no-op.
	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
}

// RoleStore manages roles and their permission links.
type RoleStore interface {
	Add(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error

	// AddPermission links a permission with set-union semantics.
	AddPermission(ctx context.Context, roleID, permissionID string) error
	Permissions(ctx context.Context, roleID string) ([]Permission, error)
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	Add(ctx context.Context, perm *Permission) error
	Find(ctx context.Context, id string) (*Permission, error)
	FindByName(ctx context.Context, name string) (*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
	Update(ctx context.Context, perm *Permission) error
	Delete(ctx context.Context, id string) error
}
