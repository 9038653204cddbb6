package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/collectit/marketplace/internal/app"
	"github.com/collectit/marketplace/internal/config"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	if errEnv := godotenv.Load(); errEnv != nil && !errors.Is(errEnv, fs.ErrNotExist) {
		log.WithError(errEnv).Warn("failed to load .env")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags and either writes a starter config, runs migrations or starts the server.
func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("collectit", flag.ContinueOnError)
	cfgPath := flags.String("config", "", "config file path (or env CONFIG_PATH)")
	port := flags.Int("port", 0, "server port (0 uses the configured port)")
	initConfig := flags.Bool("init", false, "write a starter config file and exit")
	migrateOnly := flags.Bool("migrate", false, "run database migrations and exit")
	dsn := flags.String("dsn", "", "database DSN for -init (defaults to a local SQLite file)")
	storagePath := flags.String("storage", "", "content directory for -init")
	adminUser := flags.String("admin-username", "", "bootstrap administrator username for -init")
	adminEmail := flags.String("admin-email", "", "bootstrap administrator email for -init")
	adminPassword := flags.String("admin-password", "", "bootstrap administrator password for -init")
	debug := flags.Bool("debug", false, "enable debug logging")
	if errParse := flags.Parse(args); errParse != nil {
		return errParse
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)

	switch {
	case *initConfig:
		errWrite := app.WriteConfigFile(configPath, app.InitOptions{
			DatabaseDSN:   *dsn,
			Port:          *port,
			StoragePath:   *storagePath,
			AdminUsername: *adminUser,
			AdminEmail:    *adminEmail,
			AdminPassword: *adminPassword,
		})
		if errWrite != nil {
			return errWrite
		}
		log.Infof("config written to %s", configPath)
		return nil
	case *migrateOnly:
		if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	}

	if !app.ConfigExists(configPath) && strings.TrimSpace(os.Getenv(config.EnvDBConnection)) == "" {
		return fmt.Errorf("config file %s not found; run with -init or set %s", configPath, config.EnvDBConnection)
	}
	return app.RunServer(ctx, appCfg, *port)
}

func validatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
