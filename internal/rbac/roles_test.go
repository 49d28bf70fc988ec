package rbac

import (
	"context"
	"testing"
)

func newTestRoleService(t *testing.T) (*RoleService, *memRoles, *memPerms, *memIdentity) {
	t.Helper()
	perms := newMemPerms()
	roles := newMemRoles(perms)
	ids := newMemIdentity()
	svc, err := NewRoleService(roles, perms, ids)
	if err != nil {
		t.Fatalf("NewRoleService: %v", err)
	}
	return svc, roles, perms, ids
}

func TestCreateRoleMirrorsIdentitySide(t *testing.T) {
	svc, _, _, ids := newTestRoleService(t)

	role, err := svc.Create(context.Background(), "Manager", "runs things")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if role.ID == "" {
		t.Fatal("expected a generated id")
	}
	if !ids.roles["Manager"] {
		t.Fatal("identity-side role must exist after create")
	}

	if _, err := svc.Create(context.Background(), "Manager", "again"); err == nil {
		t.Fatal("duplicate role name must conflict")
	}
	if _, err := svc.Create(context.Background(), "  ", ""); err == nil {
		t.Fatal("blank name must be rejected")
	}
}

func TestUpdateRoleEnsuresNewName(t *testing.T) {
	svc, _, _, ids := newTestRoleService(t)
	role, err := svc.Create(context.Background(), "Manager", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := svc.Update(context.Background(), role.ID, "Supervisor", "renamed")
	if err != nil || !updated {
		t.Fatalf("Update: updated=%v err=%v", updated, err)
	}
	if !ids.roles["Supervisor"] {
		t.Fatal("renamed role must be ensured identity-side")
	}

	updated, err = svc.Update(context.Background(), "no-such-id", "X", "")
	if err != nil || updated {
		t.Fatalf("Update unknown: updated=%v err=%v", updated, err)
	}
}

func TestDeleteRoleLeavesIdentitySideAlone(t *testing.T) {
	svc, roles, _, ids := newTestRoleService(t)
	role, err := svc.Create(context.Background(), "Manager", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	deleted, err := svc.Delete(context.Background(), role.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	if _, err := roles.Find(context.Background(), role.ID); err == nil {
		t.Fatal("entity role must be gone")
	}
	if !ids.roles["Manager"] {
		t.Fatal("identity-side role name stays in place")
	}

	deleted, err = svc.Delete(context.Background(), role.ID)
	if err != nil || deleted {
		t.Fatalf("Delete again: deleted=%v err=%v", deleted, err)
	}
}

func TestAssignPermissionSetSemantics(t *testing.T) {
	svc, roles, perms, _ := newTestRoleService(t)
	role, err := svc.Create(context.Background(), "Manager", "")
	if err != nil {
		t.Fatalf("Create role: %v", err)
	}
	perm := &Permission{ID: "perm-1", Name: "Users.Read"}
	if err := perms.Add(context.Background(), perm); err != nil {
		t.Fatalf("add permission: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := svc.AssignPermission(context.Background(), role.ID, perm.ID)
		if err != nil || !ok {
			t.Fatalf("AssignPermission #%d: ok=%v err=%v", i+1, ok, err)
		}
	}
	linked, err := roles.Permissions(context.Background(), role.ID)
	if err != nil {
		t.Fatalf("Permissions: %v", err)
	}
	if len(linked) != 1 {
		t.Fatalf("expected exactly one linked permission, got %d", len(linked))
	}

	ok, err := svc.AssignPermission(context.Background(), role.ID, "no-such-perm")
	if err != nil || ok {
		t.Fatalf("unknown permission: ok=%v err=%v", ok, err)
	}
	ok, err = svc.AssignPermission(context.Background(), "no-such-role", perm.ID)
	if err != nil || ok {
		t.Fatalf("unknown role: ok=%v err=%v", ok, err)
	}
}

func TestPermissionServiceCRUD(t *testing.T) {
	perms := newMemPerms()
	svc, err := NewPermissionService(perms)
	if err != nil {
		t.Fatalf("NewPermissionService: %v", err)
	}

	perm, err := svc.Create(context.Background(), "Audit.Read", "read the audit trail")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(context.Background(), "Audit.Read", "dup"); err == nil {
		t.Fatal("duplicate name must conflict")
	}

	updated, err := svc.Update(context.Background(), perm.ID, "Audit.Export", "")
	if err != nil || !updated {
		t.Fatalf("Update: updated=%v err=%v", updated, err)
	}

	deleted, err := svc.Delete(context.Background(), perm.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = svc.Delete(context.Background(), perm.ID)
	if err != nil || deleted {
		t.Fatalf("Delete again: deleted=%v err=%v", deleted, err)
	}
}
