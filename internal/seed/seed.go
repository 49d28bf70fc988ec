// Package seed provisions the baseline roles, the permission catalog and the
// system admin account. Every step is idempotent so the seeder can run on
// every boot.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"erbms.org/internal/config"
	"erbms.org/internal/identity"
	"erbms.org/internal/obs"
	"erbms.org/internal/rbac"

	"github.com/google/uuid"
)

// Catalog is the built-in permission set. Names follow resource.action and
// are stable across releases.
var Catalog = []struct {
	Name        string
	Description string
}{
	{"Users.Read", "List and inspect user accounts"},
	{"Users.Manage", "Create, update, approve and delete user accounts"},
	{"Roles.Read", "List roles and their permissions"},
	{"Roles.Manage", "Create, update and delete roles"},
	{"Permissions.Manage", "Maintain the permission catalog"},
	{"Audit.Read", "Read the audit trail"},
}

const adminRole = "Admin"

// Seeder provisions baseline data in both stores.
type Seeder struct {
	cfg         config.Config
	identities  identity.Store
	users       rbac.UserStore
	roles       rbac.RoleStore
	permissions rbac.PermissionStore
}

func New(cfg config.Config, identities identity.Store, users rbac.UserStore, roles rbac.RoleStore, permissions rbac.PermissionStore) (*Seeder, error) {
	if identities == nil || users == nil || roles == nil || permissions == nil {
		return nil, errors.New("seed: all stores are required")
	}
	return &Seeder{cfg: cfg, identities: identities, users: users, roles: roles, permissions: permissions}, nil
}

// Run applies the full baseline: roles in both stores, the permission
// catalog, admin role grants and the system admin account.
func (s *Seeder) Run(ctx context.Context) error {
	roleIDs, err := s.ensureRoles(ctx)
	if err != nil {
		return err
	}
	permIDs, err := s.ensurePermissions(ctx)
	if err != nil {
		return err
	}
	if err := s.grantAdmin(ctx, roleIDs, permIDs); err != nil {
		return err
	}
	return s.ensureAdminAccount(ctx, roleIDs)
}

func (s *Seeder) ensureRoles(ctx context.Context) (map[string]string, error) {
	ids := make(map[string]string, len(s.cfg.SeedRoles))
	for _, name := range s.cfg.SeedRoles {
		if err := s.identities.EnsureRole(ctx, name); err != nil {
			return nil, fmt.Errorf("seed: ensure identity role %s: %w", name, err)
		}
		role, err := s.roles.FindByName(ctx, name)
		if errors.Is(err, rbac.ErrNotFound) {
			role = &rbac.Role{ID: uuid.NewString(), Name: name, Description: name + " role"}
			switch addErr := s.roles.Add(ctx, role); {
			case errors.Is(addErr, rbac.ErrConflict):
				// Lost a concurrent boot race; take the winner's row.
				if role, err = s.roles.FindByName(ctx, name); err != nil {
					return nil, err
				}
			case addErr != nil:
				return nil, fmt.Errorf("seed: add role %s: %w", name, addErr)
			}
		} else if err != nil {
			return nil, err
		}
		ids[name] = role.ID
	}
	return ids, nil
}

func (s *Seeder) ensurePermissions(ctx context.Context) ([]string, error) {
	permIDs := make([]string, 0, len(Catalog))
	for _, entry := range Catalog {
		perm, err := s.permissions.FindByName(ctx, entry.Name)
		if errors.Is(err, rbac.ErrNotFound) {
			perm = &rbac.Permission{ID: uuid.NewString(), Name: entry.Name, Description: entry.Description}
			switch addErr := s.permissions.Add(ctx, perm); {
			case errors.Is(addErr, rbac.ErrConflict):
				if perm, err = s.permissions.FindByName(ctx, entry.Name); err != nil {
					return nil, err
				}
			case addErr != nil:
				return nil, fmt.Errorf("seed: add permission %s: %w", entry.Name, addErr)
			}
		} else if err != nil {
			return nil, err
		}
		permIDs = append(permIDs, perm.ID)
	}
	return permIDs, nil
}

// grantAdmin gives the Admin role every catalog permission. The link write
// has set semantics so re-running never duplicates.
func (s *Seeder) grantAdmin(ctx context.Context, roleIDs map[string]string, permIDs []string) error {
	adminID, ok := roleIDs[adminRole]
	if !ok {
		return nil
	}
	for _, permID := range permIDs {
		if err := s.roles.AddPermission(ctx, adminID, permID); err != nil {
			return fmt.Errorf("seed: grant admin permission: %w", err)
		}
	}
	return nil
}

func (s *Seeder) ensureAdminAccount(ctx context.Context, roleIDs map[string]string) error {
	email := strings.ToLower(strings.TrimSpace(s.cfg.AdminEmail))
	info, err := s.identities.Register(ctx, identity.NewCredentials{
		Email:    email,
		Password: s.cfg.AdminPassword,
		FullName: s.cfg.AdminFullName,
	})
	if err != nil {
		return fmt.Errorf("seed: register admin identity: %w", err)
	}
	if info == nil {
		// Identity already present; resolve the id through the entity store.
		existing, err := s.users.FindByEmail(ctx, email)
		if errors.Is(err, rbac.ErrNotFound) {
			return fmt.Errorf("seed: admin identity exists without a business user; run cleanup for %s", email)
		}
		if err != nil {
			return err
		}
		return s.linkAdminRole(ctx, existing.ID, roleIDs)
	}

	user := &rbac.User{
		ID:       info.UserID,
		Email:    info.Email,
		FullName: info.FullName,
		IsActive: true,
	}
	if err := s.users.Add(ctx, user); err != nil && !errors.Is(err, rbac.ErrConflict) {
		return fmt.Errorf("seed: add admin user: %w", err)
	}
	obs.LogEvent("info", "seeded system admin account", map[string]any{"email": email})
	return s.linkAdminRole(ctx, info.UserID, roleIDs)
}

func (s *Seeder) linkAdminRole(ctx context.Context, userID string, roleIDs map[string]string) error {
	adminID, ok := roleIDs[adminRole]
	if !ok {
		return nil
	}
	if err := s.users.AddRole(ctx, userID, adminID); err != nil {
		return fmt.Errorf("seed: link admin role: %w", err)
	}
	if _, err := s.identities.AssignRole(ctx, userID, adminRole); err != nil {
		return fmt.Errorf("seed: mirror admin role: %w", err)
	}
	return nil
}
