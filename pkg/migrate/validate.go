package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// postgresOnly lists constructs the SQLite dialect rejects. Migrations run on
// both dialects, so they are refused at validation time.
var postgresOnly = []string{"JSONB", "SERIAL", "::", "GEN_RANDOM_UUID", "CREATE EXTENSION", "$$"}

// ValidateDir validates the migrations in a directory on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateEmbedded validates the bundled migrations.
func ValidateEmbedded() error {
	return ValidateFS(Migrations, embeddedDir)
}

// ValidateFS checks filenames, version uniqueness, goose annotations and
// dialect portability of every .sql file in dir.
func ValidateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		name := e.Name()
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := validateSQL(name, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func validateSQL(name, txt string) error {
	up := strings.Index(txt, "-- +goose Up")
	if up < 0 {
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	}
	down := strings.Index(txt, "-- +goose Down")
	if down < 0 {
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	}
	if down < up {
		return fmt.Errorf("migration %q has its Down section before Up", name)
	}
	upper := strings.ToUpper(txt)
	for _, token := range postgresOnly {
		if strings.Contains(upper, token) {
			return fmt.Errorf("migration %q uses %q, which sqlite cannot apply", name, token)
		}
	}
	return nil
}
