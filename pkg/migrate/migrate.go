package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// embeddedDir is the directory inside Migrations holding the SQL files.
const embeddedDir = "migrations"

// Migrations bundles the portal schema so binaries and tests can migrate without a checkout.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// Run executes a standard goose command against migrations on disk. An
// empty dialect means postgres.
func Run(ctx context.Context, db *sql.DB, dialect, dir, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	if err := useDisk(dialect); err != nil {
		return err
	}

	// RunContext prints status output to stdout (goose internal)
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// UpEmbedded applies the bundled migrations using the given goose dialect.
func UpEmbedded(ctx context.Context, db *sql.DB, dialect string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dialect == "" {
		dialect = DialectPostgres
	}

	goose.SetBaseFS(Migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, embeddedDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// DialectFor maps a gorm dialector name onto the goose dialect.
func DialectFor(gormDialect string) string {
	if gormDialect == "sqlite" {
		return DialectSQLite
	}
	return DialectPostgres
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dialect, dir, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	if err := useDisk(dialect); err != nil {
		return err
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil

	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil

	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}

func useDisk(dialect string) error {
	if dialect == "" {
		dialect = DialectPostgres
	}
	goose.SetBaseFS(nil)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}
