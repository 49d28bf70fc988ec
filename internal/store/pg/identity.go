package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"erbms.org/internal/identity"
)

var _ identity.Store = (*Store)(nil)

// DefaultRole is attached to every freshly registered identity.
const DefaultRole = "User"

func (s *Store) ValidateCredentials(ctx context.Context, email, password string) (*identity.Info, error) {
	var (
		id, storedEmail, fullName, hash string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, email, full_name, password_hash
		from identities
		where lower(email) = lower($1)
	`, email).Scan(&id, &storedEmail, &fullName, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if identity.VerifyPassword(hash, password) != nil {
		// Same result as an unknown email.
		return nil, nil
	}
	return s.identityInfo(ctx, id, storedEmail, fullName)
}

func (s *Store) Register(ctx context.Context, creds identity.NewCredentials) (*identity.Info, error) {
	hash, err := identity.HashPassword(creds.Password)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		insert into identities (id, email, full_name, password_hash)
		values ($1, $2, $3, $4)
	`, id, creds.Email, creds.FullName, hash); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, nil
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into identity_roles (id, name)
		values ($1, $2)
		on conflict (name) do nothing
	`, uuid.NewString(), DefaultRole); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into identity_user_roles (identity_id, role_id)
		select $1, id from identity_roles where name = $2
		on conflict do nothing
	`, id, DefaultRole); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &identity.Info{
		UserID:   id,
		Email:    creds.Email,
		FullName: creds.FullName,
		Roles:    []string{DefaultRole},
	}, nil
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from identities where lower(email) = lower($1))
	`, email).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) EnsureRole(ctx context.Context, roleName string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into identity_roles (id, name)
		values ($1, $2)
		on conflict (name) do nothing
	`, uuid.NewString(), roleName)
	return err
}

func (s *Store) AssignRole(ctx context.Context, userID, roleName string) (bool, error) {
	exists, err := s.identityExists(ctx, userID)
	if err != nil || !exists {
		return false, err
	}
	if err := s.EnsureRole(ctx, roleName); err != nil {
		return false, err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into identity_user_roles (identity_id, role_id)
		select $1, id from identity_roles where name = $2
		on conflict do nothing
	`, userID, roleName)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) RemoveRole(ctx context.Context, userID, roleName string) (bool, error) {
	exists, err := s.identityExists(ctx, userID)
	if err != nil || !exists {
		return false, err
	}
	_, err = s.db.ExecContext(ctx, `
		delete from identity_user_roles
		where identity_id = $1
		  and role_id = (select id from identity_roles where name = $2)
	`, userID, roleName)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) DeleteByID(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `delete from identities where id = $1`, userID)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *Store) DeleteByEmail(ctx context.Context, email string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `delete from identities where lower(email) = lower($1)`, email)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *Store) FindByRefreshToken(ctx context.Context, token string) (*identity.Info, error) {
	var id, email, fullName string
	err := s.db.QueryRowContext(ctx, `
		select i.id, i.email, i.full_name
		from refresh_tokens rt
		join identities i on i.id = rt.user_id
		where rt.token = $1
		  and rt.is_revoked = false
		  and rt.expiry_date > now()
	`, token).Scan(&id, &email, &fullName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.identityInfo(ctx, id, email, fullName)
}

func (s *Store) StoreRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (token, user_id, expiry_date, is_revoked, created_at)
		values ($1, $2, $3, false, now())
	`, token, userID, expiresAt)
	return err
}

// RevokeRefreshToken is the one at-most-once operation in the system: the
// conditional update keyed on is_revoked = false guarantees only the first
// caller for a token value wins; concurrent losers see zero rows.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set is_revoked = true
		where token = $1 and is_revoked = false
	`, token)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *Store) identityExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from identities where id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) identityInfo(ctx context.Context, id, email, fullName string) (*identity.Info, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from identity_user_roles ur
		join identity_roles r on r.id = ur.role_id
		where ur.identity_id = $1
		order by r.name
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &identity.Info{UserID: id, Email: email, FullName: fullName, Roles: roles}, nil
}
