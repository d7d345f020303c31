package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/msa-portal/portal-backend/pkg/migrate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestMembersMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_members.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no members migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS members",
		"CONSTRAINT members_email_key UNIQUE (email)",
		"CREATE TABLE IF NOT EXISTS member_invitations",
		"DROP TABLE IF EXISTS member_invitations",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestUpEmbeddedAppliesToSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_up?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	defer sqlDB.Close()

	if err := migrate.UpEmbedded(context.Background(), sqlDB, migrate.DialectSQLite); err != nil {
		t.Fatalf("up embedded: %v", err)
	}

	for _, table := range []string{"members", "member_invitations", "volunteer_tasks", "volunteer_applications", "system_logs", "system_metrics", "messages", "message_recipients", "events", "event_registrations"} {
		if !conn.Migrator().HasTable(table) {
			t.Errorf("expected table %s after migration", table)
		}
	}
}
