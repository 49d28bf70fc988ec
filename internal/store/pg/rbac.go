package pg

import (
	"context"
	"database/sql"
	"errors"

	"erbms.org/internal/rbac"
)

// UserStore is the business-user half of the store. It is a view over the
// same *sql.DB as the identity methods so both sides share one pool.
type UserStore struct{ db *sql.DB }

// RoleStore manages app_roles and the role_permissions link table.
type RoleStore struct{ db *sql.DB }

// PermissionStore manages the app_permissions catalog.
type PermissionStore struct{ db *sql.DB }

var (
	_ rbac.UserStore       = (*UserStore)(nil)
	_ rbac.RoleStore       = (*RoleStore)(nil)
	_ rbac.PermissionStore = (*PermissionStore)(nil)
)

func (s *Store) Users() *UserStore             { return &UserStore{db: s.db} }
func (s *Store) Roles() *RoleStore             { return &RoleStore{db: s.db} }
func (s *Store) Permissions() *PermissionStore { return &PermissionStore{db: s.db} }

// Business user store -------------------------------------------------------

func (s *UserStore) Add(ctx context.Context, u *rbac.User) error {
	err := s.db.QueryRowContext(ctx, `
		insert into app_users (id, email, full_name, is_active)
		values ($1, $2, $3, $4)
		returning created_at
	`, u.ID, u.Email, u.FullName, u.IsActive).Scan(&u.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.ErrConflict
		}
		return err
	}
	return nil
}

func (s *UserStore) Find(ctx context.Context, id string) (*rbac.User, error) {
	return s.findUser(ctx, `where id = $1`, id)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*rbac.User, error) {
	return s.findUser(ctx, `where lower(email) = lower($1)`, email)
}

func (s *UserStore) findUser(ctx context.Context, where string, arg any) (*rbac.User, error) {
	var u rbac.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, full_name, is_active, created_at
		from app_users
	`+where, arg).Scan(&u.ID, &u.Email, &u.FullName, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	roles, err := s.roleNames(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (s *UserStore) List(ctx context.Context) ([]*rbac.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, full_name, is_active, created_at
		from app_users
		order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*rbac.User
	byID := map[string]*rbac.User{}
	for rows.Next() {
		var u rbac.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
		byID[u.ID] = &u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	linkRows, err := s.db.QueryContext(ctx, `
		select ur.user_id, r.name
		from user_roles ur
		join app_roles r on r.id = ur.role_id
		order by r.name
	`)
	if err != nil {
		return nil, err
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var userID, roleName string
		if err := linkRows.Scan(&userID, &roleName); err != nil {
			return nil, err
		}
		if u, ok := byID[userID]; ok {
			u.Roles = append(u.Roles, roleName)
		}
	}
	return users, linkRows.Err()
}

func (s *UserStore) Update(ctx context.Context, u *rbac.User) error {
	res, err := s.db.ExecContext(ctx, `
		update app_users
		set email = $2, full_name = $3, is_active = $4
		where id = $1
	`, u.ID, u.Email, u.FullName, u.IsActive)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.ErrConflict
		}
		return err
	}
	return requireAffected(res)
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from app_users where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *UserStore) AddRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, userID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return rbac.ErrNotFound
		}
	}
	return err
}

func (s *UserStore) RemoveRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from user_roles where user_id = $1 and role_id = $2
	`, userID, roleID)
	return err
}

func (s *UserStore) roleNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from user_roles ur
		join app_roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Role store ----------------------------------------------------------------

func (s *RoleStore) Add(ctx context.Context, role *rbac.Role) error {
	err := s.db.QueryRowContext(ctx, `
		insert into app_roles (id, name, description)
		values ($1, $2, $3)
		returning created_at
	`, role.ID, role.Name, nullIfEmpty(role.Description)).Scan(&role.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.ErrConflict
		}
		return err
	}
	return nil
}

func (s *RoleStore) Find(ctx context.Context, id string) (*rbac.Role, error) {
	return s.findRole(ctx, `where id = $1`, id)
}

func (s *RoleStore) FindByName(ctx context.Context, name string) (*rbac.Role, error) {
	return s.findRole(ctx, `where name = $1`, name)
}

func (s *RoleStore) findRole(ctx context.Context, where string, arg any) (*rbac.Role, error) {
	var (
		role rbac.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at
		from app_roles
	`+where, arg).Scan(&role.ID, &role.Name, &desc, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	role.Description = desc.String
	return &role, nil
}

func (s *RoleStore) List(ctx context.Context) ([]*rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at
		from app_roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*rbac.Role
	for rows.Next() {
		var (
			role rbac.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt); err != nil {
			return nil, err
		}
		role.Description = desc.String
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (s *RoleStore) Update(ctx context.Context, role *rbac.Role) error {
	res, err := s.db.ExecContext(ctx, `
		update app_roles set name = $2, description = $3 where id = $1
	`, role.ID, role.Name, nullIfEmpty(role.Description))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.ErrConflict
		}
		return err
	}
	return requireAffected(res)
}

func (s *RoleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from app_roles where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *RoleStore) AddPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		values ($1, $2)
		on conflict do nothing
	`, roleID, permissionID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return rbac.ErrNotFound
		}
	}
	return err
}

func (s *RoleStore) Permissions(ctx context.Context, roleID string) ([]rbac.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.created_at
		from app_permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var (
			p    rbac.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// Permission store ----------------------------------------------------------

func (s *PermissionStore) Add(ctx context.Context, perm *rbac.Permission) error {
	err := s.db.QueryRowContext(ctx, `
		insert into app_permissions (id, name, description)
		values ($1, $2, $3)
		returning created_at
	`, perm.ID, perm.Name, nullIfEmpty(perm.Description)).Scan(&perm.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.ErrConflict
		}
		return err
	}
	return nil
}

func (s *PermissionStore) Find(ctx context.Context, id string) (*rbac.Permission, error) {
	return s.findPermission(ctx, `where id = $1`, id)
}

func (s *PermissionStore) FindByName(ctx context.Context, name string) (*rbac.Permission, error) {
	return s.findPermission(ctx, `where name = $1`, name)
}

func (s *PermissionStore) findPermission(ctx context.Context, where string, arg any) (*rbac.Permission, error) {
	var (
		p    rbac.Permission
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at
		from app_permissions
	`+where, arg).Scan(&p.ID, &p.Name, &desc, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Description = desc.String
	return &p, nil
}

func (s *PermissionStore) List(ctx context.Context) ([]*rbac.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at
		from app_permissions
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []*rbac.Permission
	for rows.Next() {
		var (
			p    rbac.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		perms = append(perms, &p)
	}
	return perms, rows.Err()
}

func (s *PermissionStore) Update(ctx context.Context, perm *rbac.Permission) error {
	res, err := s.db.ExecContext(ctx, `
		update app_permissions set name = $2, description = $3 where id = $1
	`, perm.ID, perm.Name, nullIfEmpty(perm.Description))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.ErrConflict
		}
		return err
	}
	return requireAffected(res)
}

func (s *PermissionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from app_permissions where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}
