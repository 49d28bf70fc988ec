package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"erbms.org/internal/rbac"
)

func TestUserAddMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into app_users").
		WithArgs("uid-1", "jane@x.com", "Jane", true).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Users().Add(context.Background(), &rbac.User{
		ID: "uid-1", Email: "jane@x.com", FullName: "Jane", IsActive: true,
	})
	if !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserLoadsRoles(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectQuery("select id, email, full_name, is_active, created_at").
		WithArgs("uid-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "is_active", "created_at"}).
			AddRow("uid-1", "jane@x.com", "Jane", true, created))
	mock.ExpectQuery("select r.name").
		WithArgs("uid-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Manager").AddRow("User"))

	u, err := store.Users().Find(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(u.Roles) != 2 || u.Roles[0] != "Manager" {
		t.Fatalf("unexpected roles: %v", u.Roles)
	}

	mock.ExpectQuery("select id, email, full_name, is_active, created_at").
		WithArgs("uid-gone").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.Users().Find(context.Background(), "uid-gone"); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddRoleLinkIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)

	// Second insert of the same pair hits "on conflict do nothing".
	mock.ExpectExec("insert into user_roles").
		WithArgs("uid-1", "role-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into user_roles").
		WithArgs("uid-1", "role-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	users := store.Users()
	for i := 0; i < 2; i++ {
		if err := users.AddRole(context.Background(), "uid-1", "role-1"); err != nil {
			t.Fatalf("AddRole #%d: %v", i+1, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAddRoleMapsForeignKeyViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into user_roles").
		WithArgs("uid-1", "role-gone").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := store.Users().AddRole(context.Background(), "uid-1", "role-gone")
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleUpdateNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update app_roles").
		WithArgs("role-gone", "Manager", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Roles().Update(context.Background(), &rbac.Role{ID: "role-gone", Name: "Manager"})
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRolePermissionsQuery(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectQuery("select p.id, p.name, p.description, p.created_at").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at"}).
			AddRow("perm-1", "Users.Read", "list users", created).
			AddRow("perm-2", "Users.Manage", nil, created))

	perms, err := store.Roles().Permissions(context.Background(), "role-1")
	if err != nil {
		t.Fatalf("Permissions: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("expected 2 permissions, got %d", len(perms))
	}
	if perms[1].Description != "" {
		t.Fatalf("null description must read as empty, got %q", perms[1].Description)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPermissionAddConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into app_permissions").
		WithArgs("perm-1", "Users.Read", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Permissions().Add(context.Background(), &rbac.Permission{ID: "perm-1", Name: "Users.Read"})
	if !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
