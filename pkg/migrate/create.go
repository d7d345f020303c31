package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

const versionLayout = "20060102150405"

// migrationTemplate follows the portal collection conventions: uuid ids and
// server-stamped timestamps, portable across postgres and sqlite.
const migrationTemplate = `-- +goose Up
-- %[1]s
-- CREATE TABLE IF NOT EXISTS example (
--     id UUID PRIMARY KEY,
--     created_at TIMESTAMPTZ NOT NULL,
--     updated_at TIMESTAMPTZ NOT NULL
-- );

-- +goose Down
-- rollback %[1]s
`

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<name>.sql. The version
// is always later than every migration already in dir.
func CreateSQLMigration(dir string, name string) (string, error) {
	return createSQLMigration(dir, name, time.Now)
}

func createSQLMigration(dir, name string, now func() time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(strings.ReplaceAll(safe, " ", "_"), "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	latest, err := latestVersion(dir)
	if err != nil {
		return "", err
	}
	version := now().UTC()
	if !latest.IsZero() && !version.After(latest) {
		version = latest.Add(time.Second)
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version.Format(versionLayout), safe))
	if _, err := os.Stat(fullpath); err == nil {
		return "", fmt.Errorf("migration already exists: %s", fullpath)
	}
	if err := os.WriteFile(fullpath, []byte(fmt.Sprintf(migrationTemplate, safe)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func latestVersion(dir string) (time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, fmt.Errorf("read dir %q: %w", dir, err)
	}
	var latest time.Time
	for _, e := range entries {
		m := sqlFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, err := time.Parse(versionLayout, m[1])
		if err != nil {
			continue
		}
		if v.After(latest) {
			latest = v
		}
	}
	return latest, nil
}
