package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"
)

var migrationNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	markerUp    = "-- +goose Up"
	markerDown  = "-- +goose Down"
	markerBegin = "-- +goose StatementBegin"
	markerEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks the migrations in dir. See ValidateFS.
func ValidateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("migration dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks every .sql file at the root of fsys: the filename must be
// <14 digit version>_<slug>.sql with a unique version, the Up section must
// precede the Down section and statement blocks must be balanced.
func ValidateFS(fsys fs.FS) error {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return errors.New("no migrations found")
	}

	versions := make(map[string]string, len(files))
	for _, name := range files {
		m := migrationNameRe.FindStringSubmatch(path.Base(name))
		if m == nil {
			return fmt.Errorf("migration %q: name must match YYYYMMDDHHMMSS_slug.sql", name)
		}
		if prev, dup := versions[m[1]]; dup {
			return fmt.Errorf("migration %q: version %s already used by %q", name, m[1], prev)
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %q: %w", name, err)
		}
		if err := checkMarkers(string(body)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func checkMarkers(sql string) error {
	up := strings.Index(sql, markerUp)
	down := strings.Index(sql, markerDown)
	switch {
	case up < 0:
		return fmt.Errorf("missing %q", markerUp)
	case down < 0:
		return fmt.Errorf("missing %q", markerDown)
	case down < up:
		return fmt.Errorf("%q must come before %q", markerUp, markerDown)
	}
	if begins, ends := strings.Count(sql, markerBegin), strings.Count(sql, markerEnd); begins != ends {
		return fmt.Errorf("%d statement blocks opened but %d closed", begins, ends)
	}
	return nil
}
