package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/db"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/migrate"
)

const usage = "migration command: up|up-embedded|down|status|version|create|validate"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", usage)
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate work on files only and need no config.
	switch *cmd {
	case "create":
		if *name == "" {
			exit(ctx, logg, "missing -name for create", nil)
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			exit(ctx, logg, "failed to create migration", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			exit(ctx, logg, "migration validation failed", err)
		}
		if err := migrate.ValidateEmbedded(); err != nil {
			exit(ctx, logg, "bundled migration validation failed", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		exit(ctx, logg, "failed to load config", err)
	}
	if !cfg.Backend.UsesSQL() {
		exit(ctx, logg, fmt.Sprintf("migrations only apply to the %s backend", config.BackendKindSQL), nil)
	}

	logg = logger.ForApp("migrate", cfg.App)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		exit(ctx, logg, "failed to open database", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		exit(ctx, logg, "failed to get sql handle", err)
	}
	dialect := migrate.DialectFor(dbClient.Dialect())

	ctx = logg.WithFields(ctx, map[string]any{
		"cmd":     *cmd,
		"dir":     *dir,
		"dialect": dialect,
	})
	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up", "down", "status":
		err = migrate.Run(ctx, sqlDB, dialect, *dir, *cmd)
	case "up-embedded":
		err = migrate.UpEmbedded(ctx, sqlDB, dialect)
	case "version":
		if *version == "" {
			exit(ctx, logg, "missing -version for version command", nil)
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, dialect, *dir, *version)
	default:
		exit(ctx, logg, "unknown -cmd value: "+*cmd, nil)
	}
	if err != nil {
		exit(ctx, logg, "goose "+*cmd+" failed", err)
	}
	logg.Info(ctx, "migrate complete")
}

func exit(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		err = fmt.Errorf("%s", msg)
	}
	logg.Error(ctx, msg, err)
	fmt.Fprintln(os.Stderr, usage)
	os.Exit(1)
}
