package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateSQLMigrationKeepsVersionsIncreasing(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20300101000000_future.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("seed migration: %v", err)
	}

	now := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	path, err := createSQLMigration(dir, "Add Event Waitlist!", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := filepath.Base(path); got != "20300101000001_add_event_waitlist.sql" {
		t.Fatalf("unexpected filename %s", got)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := createSQLMigration(t.TempDir(), " !! ", time.Now); err == nil {
		t.Fatal("expected error for a name with no usable characters")
	}
}

func TestValidateSQL(t *testing.T) {
	cases := map[string]string{
		"missing up":    "-- +goose Down\nDROP TABLE x;",
		"down first":    "-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x (id UUID);",
		"postgres only": "-- +goose Up\nCREATE TABLE x (payload jsonb);\n-- +goose Down\nDROP TABLE x;",
	}
	for name, sql := range cases {
		if err := validateSQL(name+".sql", sql); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
	if err := validateSQL("ok.sql", "-- +goose Up\nCREATE TABLE x (id UUID);\n-- +goose Down\nDROP TABLE x;"); err != nil {
		t.Fatalf("expected valid migration, got %v", err)
	}
}

func TestValidateEmbedded(t *testing.T) {
	if err := ValidateEmbedded(); err != nil {
		t.Fatalf("bundled migrations: %v", err)
	}
	if !strings.HasPrefix(DefaultDir, "pkg/migrate") {
		t.Fatalf("unexpected default dir %s", DefaultDir)
	}
}
