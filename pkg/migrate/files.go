package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
)

const versionLayout = "20060102150405"

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

const sqlTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration named
// <dir>/<YYYYMMDDHHMMSS>_<slug>.sql and returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", time.Now().UTC().Format(versionLayout), slug))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, sqlTemplate, slug); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// ValidateDir lets goose collect the directory, which rejects malformed names
// and duplicate versions, then checks every file declares both directions
// with balanced statement blocks.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}
	migrations, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("collect migrations: %w", err)
	}
	for _, m := range migrations {
		name := filepath.Base(m.Source)
		if len(strings.SplitN(name, "_", 2)[0]) != len(versionLayout) {
			return fmt.Errorf("migration %q must be versioned YYYYMMDDHHMMSS", name)
		}
		raw, err := os.ReadFile(m.Source)
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		if err := checkAnnotations(string(raw)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func checkAnnotations(sql string) error {
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(sql, marker) {
			return fmt.Errorf("missing %q", marker)
		}
	}
	begins := strings.Count(sql, "-- +goose StatementBegin")
	ends := strings.Count(sql, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("%d StatementBegin but %d StatementEnd", begins, ends)
	}
	return nil
}
