package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/collectit/marketplace/internal/config"
	"github.com/collectit/marketplace/internal/db"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func TestWriteConfigFileThenServe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	opts := InitOptions{
		DatabaseDSN:   buildSQLiteDSN(filepath.Join(dir, "collectit.db")),
		StoragePath:   filepath.Join(dir, "content"),
		AdminUsername: "admin1",
		AdminPassword: "secret1",
	}
	if errWrite := WriteConfigFile(configPath, opts); errWrite != nil {
		t.Fatalf("WriteConfigFile: %v", errWrite)
	}
	if errWrite := WriteConfigFile(configPath, opts); !errors.Is(errWrite, ErrConfigExists) {
		t.Fatalf("expected ErrConfigExists, got %v", errWrite)
	}

	t.Setenv(config.EnvDBConnection, "")
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.JWT.Secret) != 64 {
		t.Fatalf("expected generated jwt secret, got %q", cfg.JWT.Secret)
	}

	server, err := NewServer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer func() { _ = server.Close() }()

	w := httptest.NewRecorder()
	server.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}

	body := strings.NewReader(`{"login":"admin1","password":"secret1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/account/login", body)
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	server.Engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected bootstrap admin to log in, got %d %s", w.Code, w.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &login); errDecode != nil || login.Token == "" {
		t.Fatalf("decode login: %v", errDecode)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/system/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	w = httptest.NewRecorder()
	server.Engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected admin metrics, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if _, errStat := os.Stat(opts.StoragePath); errStat != nil {
		t.Fatalf("expected content root to be created: %v", errStat)
	}
}

func TestConfigExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if ConfigExists(path) {
		t.Fatalf("expected missing file")
	}
	if errWrite := os.WriteFile(path, []byte("port: 1\n"), 0600); errWrite != nil {
		t.Fatalf("write: %v", errWrite)
	}
	if !ConfigExists(path) {
		t.Fatalf("expected existing file")
	}
}

func TestBuildSQLiteDSN(t *testing.T) {
	if got := buildSQLiteDSN(""); got != "file:collectit.db" {
		t.Fatalf("unexpected default dsn %q", got)
	}
	if got := buildSQLiteDSN("file:x.db"); got != "file:x.db" {
		t.Fatalf("unexpected dsn %q", got)
	}
}

func TestNewServerClosesDatabaseOnSetupFailure(t *testing.T) {
	dir := t.TempDir()
	var opened *gorm.DB
	openDatabase = func(dsn string) (*gorm.DB, error) {
		conn, err := db.Open(dsn)
		opened = conn
		return conn, err
	}
	t.Cleanup(func() { openDatabase = db.Open })

	cfg := config.Config{
		DatabaseDSN: buildSQLiteDSN(filepath.Join(dir, "collectit.db")),
		JWT:         config.JWTConfig{Secret: "test-secret"},
		Storage:     config.StorageConfig{Driver: "ftp"},
	}
	if _, err := NewServer(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "unknown storage driver") {
		t.Fatalf("expected storage driver error, got %v", err)
	}
	if opened == nil {
		t.Fatalf("expected the database to be opened")
	}
	sqlDB, err := opened.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	if errPing := sqlDB.Ping(); errPing == nil || !strings.Contains(errPing.Error(), "database is closed") {
		t.Fatalf("expected a closed pool, got %v", errPing)
	}
}
