package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"erbms.org/internal/identity"
	"erbms.org/internal/obs"
)

// CleanupResult is the outcome of removing an orphaned credential-store entry.
type CleanupResult int

const (
	CleanupNotFound CleanupResult = iota
	CleanupDeleted
	CleanupInUse
	CleanupForbidden
)

// UserService orchestrates business users across the entity store and the
// credential store.
type UserService struct {
	users      UserStore
	roles      RoleStore
	identities identity.Store
	adminEmail string
}

func NewUserService(users UserStore, roles RoleStore, identities identity.Store, adminEmail string) (*UserService, error) {
	if users == nil || roles == nil || identities == nil {
		return nil, errors.New("rbac: user service requires all stores")
	}
	return &UserService{
		users:      users,
		roles:      roles,
		identities: identities,
		adminEmail: strings.TrimSpace(adminEmail),
	}, nil
}

// IsSystemAdmin reports whether the email designates the configured system
// admin account. Evaluated per call so the answer tracks configuration.
func (s *UserService) IsSystemAdmin(email string) bool {
	return strings.EqualFold(strings.TrimSpace(email), s.adminEmail)
}

func (s *UserService) view(u *User) UserView {
	return UserView{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
		Roles:         u.Roles,
		IsSystemAdmin: s.IsSystemAdmin(u.Email),
	}
}

func (s *UserService) List(ctx context.Context) ([]UserView, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, s.view(u))
	}
	return views, nil
}

func (s *UserService) Get(ctx context.Context, id string) (UserView, error) {
	u, err := s.users.Find(ctx, id)
	if err != nil {
		return UserView{}, err
	}
	return s.view(u), nil
}

// Create registers an identity and an active business user in one step.
// Admin-created accounts skip the approval gate.
func (s *UserService) Create(ctx context.Context, fullName, email, password string) (UserView, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	fullName = strings.TrimSpace(fullName)
	if email == "" || !strings.Contains(email, "@") || fullName == "" || password == "" {
		return UserView{}, fmt.Errorf("%w: full name, valid email and password are required", ErrInvalidInput)
	}

	info, err := s.identities.Register(ctx, identity.NewCredentials{
		Email:    email,
		Password: password,
		FullName: fullName,
	})
	if err != nil {
		return UserView{}, err
	}
	if info == nil {
		return UserView{}, fmt.Errorf("%w: email already used", ErrConflict)
	}

	existing, err := s.users.FindByEmail(ctx, info.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return UserView{}, err
	}
	if existing != nil {
		return s.view(existing), nil
	}

	user := &User{
		ID:       info.UserID,
		Email:    info.Email,
		FullName: info.FullName,
		IsActive: true,
		Roles:    info.Roles,
	}
	if err := s.users.Add(ctx, user); err != nil {
		return UserView{}, err
	}
	return s.view(user), nil
}

func (s *UserService) Update(ctx context.Context, id, fullName, email string) error {
	user, err := s.users.Find(ctx, id)
	if err != nil {
		return err
	}
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(strings.ToLower(email))
	if fullName == "" || email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: full name and valid email are required", ErrInvalidInput)
	}
	user.FullName = fullName
	user.Email = email
	return s.users.Update(ctx, user)
}

// Delete removes the account from the credential store first; the business
// user row goes only after the identity deletion is confirmed, so a User row
// never outlives its backing identity by partial failure.
func (s *UserService) Delete(ctx context.Context, id string) (bool, error) {
	user, err := s.users.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.IsSystemAdmin(user.Email) {
		return false, nil
	}

	deleted, err := s.identities.DeleteByID(ctx, user.ID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return false, err
	}
	return true, nil
}

// Approve flips the pending-approval gate. Approving an already-active
// account is still a success.
func (s *UserService) Approve(ctx context.Context, id string) (bool, error) {
	user, err := s.users.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !user.IsActive {
		user.IsActive = true
		if err := s.users.Update(ctx, user); err != nil {
			return false, err
		}
	}
	return true, nil
}

// CleanupIdentity removes an orphaned credential-store entry that has no
// business user, typically left behind by a failed registration.
func (s *UserService) CleanupIdentity(ctx context.Context, email string) (CleanupResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if s.IsSystemAdmin(email) {
		return CleanupForbidden, nil
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return CleanupNotFound, err
	}
	if existing != nil {
		return CleanupInUse, nil
	}

	deleted, err := s.identities.DeleteByEmail(ctx, email)
	if err != nil {
		return CleanupNotFound, err
	}
	if deleted {
		return CleanupDeleted, nil
	}
	return CleanupNotFound, nil
}

// AssignRole links a role by name in the entity store and mirrors the
// membership into the credential store. Idempotent on both sides.
func (s *UserService) AssignRole(ctx context.Context, userID, roleName string) (bool, error) {
	user, role, err := s.resolveUserRole(ctx, userID, roleName)
	if err != nil || user == nil {
		return false, err
	}

	if err := s.users.AddRole(ctx, user.ID, role.ID); err != nil {
		return false, err
	}
	if _, err := s.identities.AssignRole(ctx, user.ID, role.Name); err != nil {
		s.reportMirrorFailure(ctx, "assign", user.ID, role.Name, err)
		return false, err
	}
	return true, nil
}

// RemoveRole unlinks a role by name in the entity store and mirrors the
// removal into the credential store.
func (s *UserService) RemoveRole(ctx context.Context, userID, roleName string) (bool, error) {
	user, role, err := s.resolveUserRole(ctx, userID, roleName)
	if err != nil || user == nil {
		return false, err
	}

	if err := s.users.RemoveRole(ctx, user.ID, role.ID); err != nil {
		return false, err
	}
	if _, err := s.identities.RemoveRole(ctx, user.ID, role.Name); err != nil {
		s.reportMirrorFailure(ctx, "remove", user.ID, role.Name, err)
		return false, err
	}
	return true, nil
}

func (s *UserService) resolveUserRole(ctx context.Context, userID, roleName string) (*User, *Role, error) {
	user, err := s.users.Find(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	role, err := s.roles.FindByName(ctx, strings.TrimSpace(roleName))
	if errors.Is(err, ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return user, role, nil
}

// There is no compensating transaction across the two stores; a mirror
// failure leaves them divergent until an operator reconciles. Log loudly.
func (s *UserService) reportMirrorFailure(ctx context.Context, op, userID, roleName string, err error) {
	obs.CountMirrorFailure()
	obs.LogEvent("error", "role mirror failed", map[string]any{
		"op":      op,
		"user_id": userID,
		"role":    roleName,
		"error":   err.Error(),
	})
}
