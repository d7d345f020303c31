// Package sqlstoretest opens migrated in-memory SQLite backends for tests.
package sqlstoretest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend/sqlstore"
	"github.com/msa-portal/portal-backend/pkg/db"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/migrate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var seq atomic.Int64

// Options tweak the store built by New.
type Options struct {
	Now   func() time.Time
	NewID func() string
}

// New returns a SQL backend over a fresh, fully migrated in-memory database.
func New(t testing.TB, opts Options) (*sqlstore.Store, *gorm.DB) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := migrate.UpEmbedded(context.Background(), sqlDB, migrate.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store, err := sqlstore.New(sqlstore.Params{
		DB:     db.NewFromGorm(conn),
		Logger: logger.Nop(),
		Now:    opts.Now,
		NewID:  opts.NewID,
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, conn
}
