package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"erbms.org/internal/identity"

	"github.com/google/uuid"
)

// RoleService manages roles and their permission links. Role names are
// mirrored into the credential store so both stores agree on the set of role
// names in use.
type RoleService struct {
	roles       RoleStore
	permissions PermissionStore
	identities  identity.Store
}

func NewRoleService(roles RoleStore, permissions PermissionStore, identities identity.Store) (*RoleService, error) {
	if roles == nil || permissions == nil || identities == nil {
		return nil, errors.New("rbac: role service requires all stores")
	}
	return &RoleService{roles: roles, permissions: permissions, identities: identities}, nil
}

func (s *RoleService) List(ctx context.Context) ([]*Role, error) {
	return s.roles.List(ctx)
}

// Create ensures the identity-side role exists before the entity row is
// written, so a partial failure never leaves a role the credential store has
// not heard of.
func (s *RoleService) Create(ctx context.Context, name, description string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}

	role := &Role{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if err := s.identities.EnsureRole(ctx, role.Name); err != nil {
		return nil, err
	}
	if err := s.roles.Add(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *RoleService) Update(ctx context.Context, id, name, description string) (bool, error) {
	role, err := s.roles.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}

	role.Name = name
	role.Description = strings.TrimSpace(description)
	if err := s.identities.EnsureRole(ctx, role.Name); err != nil {
		return false, err
	}
	if err := s.roles.Update(ctx, role); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the entity-store role only. The identity-side role name is
// left in place, matching how memberships were historically cleaned up.
func (s *RoleService) Delete(ctx context.Context, id string) (bool, error) {
	_, err := s.roles.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.roles.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// RolePermissions lists the permissions linked to a role.
func (s *RoleService) RolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	if _, err := s.roles.Find(ctx, roleID); err != nil {
		return nil, err
	}
	return s.roles.Permissions(ctx, roleID)
}

// AssignPermission links a permission to a role. Both must exist; the link
// has set-union semantics, never a duplicate pair.
func (s *RoleService) AssignPermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	if _, err := s.roles.Find(ctx, roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.permissions.Find(ctx, permissionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.roles.AddPermission(ctx, roleID, permissionID); err != nil {
		return false, err
	}
	return true, nil
}

// PermissionService manages the permission catalog.
type PermissionService struct {
	permissions PermissionStore
}

func NewPermissionService(permissions PermissionStore) (*PermissionService, error) {
	if permissions == nil {
		return nil, errors.New("rbac: permission store is required")
	}
	return &PermissionService{permissions: permissions}, nil
}

func (s *PermissionService) List(ctx context.Context) ([]*Permission, error) {
	return s.permissions.List(ctx)
}

func (s *PermissionService) Create(ctx context.Context, name, description string) (*Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	perm := &Permission{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if err := s.permissions.Add(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

func (s *PermissionService) Update(ctx context.Context, id, name, description string) (bool, error) {
	perm, err := s.permissions.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	perm.Name = name
	perm.Description = strings.TrimSpace(description)
	if err := s.permissions.Update(ctx, perm); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PermissionService) Delete(ctx context.Context, id string) (bool, error) {
	_, err := s.permissions.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.permissions.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}
