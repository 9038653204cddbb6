package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/collectit/marketplace/internal/account"
	"github.com/collectit/marketplace/internal/config"
	"github.com/collectit/marketplace/internal/db"
	"github.com/collectit/marketplace/internal/settings"
	"github.com/collectit/marketplace/internal/store"
)

func TestEnsureAdmin(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "collectit-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	accounts := account.NewService(store.New(conn))
	ctx := context.Background()

	created, err := EnsureAdmin(ctx, accounts, config.AdminConfig{})
	if err != nil || created {
		t.Fatalf("expected no admin without credentials, got created=%v err=%v", created, err)
	}

	cfg := config.AdminConfig{Username: "admin1", Password: "secret1"}
	created, err = EnsureAdmin(ctx, accounts, cfg)
	if err != nil || !created {
		t.Fatalf("expected admin to be created, got created=%v err=%v", created, err)
	}
	user, err := accounts.Authenticate(ctx, "admin1", "secret1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	hasAdmin := false
	for _, role := range user.Roles {
		if role == settings.RoleAdmin {
			hasAdmin = true
		}
	}
	if !hasAdmin {
		t.Fatalf("expected Admin role, got %v", user.Roles)
	}

	created, err = EnsureAdmin(ctx, accounts, config.AdminConfig{Username: "admin2", Password: "secret2"})
	if err != nil || created {
		t.Fatalf("expected existing admin to be kept, got created=%v err=%v", created, err)
	}
}
