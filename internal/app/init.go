package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/collectit/marketplace/internal/config"
	"github.com/collectit/marketplace/internal/db"
	"github.com/collectit/marketplace/internal/security"
	"github.com/collectit/marketplace/internal/settings"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "collectit.db"

// ErrConfigExists is returned when init would overwrite an existing config file.
var ErrConfigExists = errors.New("config file already exists")

// InitOptions describes the starter configuration written by WriteConfigFile.
type InitOptions struct {
	DatabaseDSN   string
	Port          int
	StoragePath   string
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// buildSQLiteDSN constructs a SQLite DSN for a file path.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	return dsn
}

// TestDatabaseConnection validates that the DSN can connect and ping.
func TestDatabaseConnection(dsn string) (err error) {
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return fmt.Errorf("failed to connect to database: %w", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return fmt.Errorf("failed to get sql db: %w", errDB)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.Ping()
}

// generateJWTSecret creates a random JWT secret string.
func generateJWTSecret() string {
	secret, err := security.GenerateRandomString(32)
	if err != nil {
		return "change-me-to-a-secure-random-string"
	}
	return secret
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Port        int        `yaml:"port"`
	DatabaseDSN string     `yaml:"database-dsn"`
	JWT         jwtCfg     `yaml:"jwt"`
	Storage     storageCfg `yaml:"storage"`
	Admin       adminCfg   `yaml:"admin"`
}

// jwtCfg holds JWT settings for the generated config file.
type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

// storageCfg holds content storage settings for the generated config file.
type storageCfg struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// adminCfg holds the bootstrap administrator for the generated config file.
type adminCfg struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// WriteConfigFile writes a starter config file with a fresh JWT secret. An existing file is never overwritten.
func WriteConfigFile(configPath string, opts InitOptions) error {
	if ConfigExists(configPath) {
		return fmt.Errorf("%w: %s", ErrConfigExists, configPath)
	}
	if opts.Port <= 0 {
		opts.Port = settings.DefaultPort
	}
	if strings.TrimSpace(opts.DatabaseDSN) == "" {
		opts.DatabaseDSN = buildSQLiteDSN(defaultSQLitePath)
	}
	if strings.TrimSpace(opts.StoragePath) == "" {
		opts.StoragePath = settings.DefaultStoragePath
	}
	if errTest := TestDatabaseConnection(opts.DatabaseDSN); errTest != nil {
		return errTest
	}

	cfg := configFile{
		Port:        opts.Port,
		DatabaseDSN: opts.DatabaseDSN,
		JWT: jwtCfg{
			Secret: generateJWTSecret(),
			Expiry: "720h",
		},
		Storage: storageCfg{
			Driver: config.StorageDriverLocal,
			Path:   opts.StoragePath,
		},
		Admin: adminCfg{
			Username: strings.TrimSpace(opts.AdminUsername),
			Email:    strings.TrimSpace(opts.AdminEmail),
			Password: opts.AdminPassword,
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}
	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}
	return nil
}
