package config

import (
	"testing"
	"time"
)

func TestLoadRequiresSigningKey(t *testing.T) {
	t.Setenv("ERBMS_JWT_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error without ERBMS_JWT_KEY")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ERBMS_JWT_KEY", "secret")
	t.Setenv("ERBMS_ADDR", "")
	t.Setenv("ERBMS_JWT_EXPIRES_MINUTES", "")
	t.Setenv("ERBMS_ADMIN_EMAIL", "")
	t.Setenv("ERBMS_SEED_ROLES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.AccessTTL != time.Hour {
		t.Fatalf("AccessTTL = %v", cfg.AccessTTL)
	}
	if cfg.RefreshExtra != 7*24*time.Hour {
		t.Fatalf("RefreshExtra = %v", cfg.RefreshExtra)
	}
	if cfg.AdminEmail != "admin@erbms.local" {
		t.Fatalf("AdminEmail = %q", cfg.AdminEmail)
	}
	want := []string{"Admin", "Manager", "User"}
	if len(cfg.SeedRoles) != len(want) {
		t.Fatalf("SeedRoles = %v", cfg.SeedRoles)
	}
	for i, r := range want {
		if cfg.SeedRoles[i] != r {
			t.Fatalf("SeedRoles = %v", cfg.SeedRoles)
		}
	}
}

func TestLoadRejectsBadExpiry(t *testing.T) {
	t.Setenv("ERBMS_JWT_KEY", "secret")
	for _, raw := range []string{"abc", "0", "-5"} {
		t.Setenv("ERBMS_JWT_EXPIRES_MINUTES", raw)
		if _, err := Load(); err == nil {
			t.Fatalf("expected an error for expiry %q", raw)
		}
	}
}

func TestIsSystemAdminCaseInsensitive(t *testing.T) {
	cfg := Config{AdminEmail: "admin@erbms.local"}
	if !cfg.IsSystemAdmin("ADMIN@ERBMS.LOCAL") {
		t.Fatal("match must ignore case")
	}
	if !cfg.IsSystemAdmin("  admin@erbms.local  ") {
		t.Fatal("match must trim whitespace")
	}
	if cfg.IsSystemAdmin("someone@erbms.local") {
		t.Fatal("other emails must not match")
	}
}
