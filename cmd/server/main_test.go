package main

import (
	"context"
	"path/filepath"
	"testing"

	"radix/backend/internal/config"
	"radix/backend/internal/logger"
	"radix/backend/internal/store/memory"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	for _, token := range []string{"", "short", "aaaaaaaaaaaaaaaaaaaa", "please-changeme-now-1234"} {
		if err := validateSecurityConfig(config.Config{AuthToken: token}); err == nil {
			t.Fatalf("expected weak token %q to be rejected", token)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthToken: "k3v9-Qm2x-77Lp-zR4t"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryInMemory(t *testing.T) {
	repo, closeFn, err := openRepository(context.Background(), config.Config{DBPath: memoryDBPath}, logger.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}
}

func TestOpenRepositorySQLiteMigrates(t *testing.T) {
	cfg := config.Config{DBPath: filepath.Join(t.TempDir(), "radix.db"), AutoMigrate: true}
	repo, closeFn, err := openRepository(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	if _, err := repo.ListAccounts(context.Background()); err != nil {
		t.Fatalf("expected migrated schema, got %v", err)
	}
}
