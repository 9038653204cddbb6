package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/collectit/marketplace/internal/app"
)

func TestRunRejectsInvalidPort(t *testing.T) {
	if err := run(context.Background(), []string{"-port", "70000"}); err == nil {
		t.Fatalf("expected invalid port to be rejected")
	}
}

func TestRunInitWritesConfigOnce(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	args := []string{
		"-init",
		"-config", configPath,
		"-dsn", "file:" + filepath.Join(dir, "collectit.db"),
		"-storage", filepath.Join(dir, "content"),
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !app.ConfigExists(configPath) {
		t.Fatalf("expected config at %s", configPath)
	}
	if err := run(context.Background(), args); err == nil {
		t.Fatalf("expected second init to refuse overwriting")
	}
}

func TestRunRequiresConfig(t *testing.T) {
	t.Setenv("DB_CONNECTION", "")
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if err := run(context.Background(), []string{"-config", missing}); err == nil {
		t.Fatalf("expected missing config to be reported")
	}
}
