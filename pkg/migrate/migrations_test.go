package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/wdir-license-backend/pkg/migrate"
	"github.com/angelmondragon/wdir-license-backend/pkg/migrate/migrations"
)

func TestEmbeddedMigrationsValidate(t *testing.T) {
	if err := migrate.ValidateFS(migrations.FS); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestLicenseMigrationsDeclareUniqueness(t *testing.T) {
	checks := map[string][]string{
		"*_create_licenses_table.sql": {
			"CREATE TABLE IF NOT EXISTS licenses",
			"CONSTRAINT licenses_license_key_key UNIQUE (license_key)",
			"CONSTRAINT licenses_stripe_session_id_key UNIQUE (stripe_session_id)",
			"flagged_multi_device boolean NOT NULL DEFAULT false",
		},
		"*_create_devices_table.sql": {
			"CONSTRAINT devices_license_id_device_id_key UNIQUE (license_id, device_id)",
		},
		"*_create_verification_codes_table.sql": {
			"attempts integer NOT NULL DEFAULT 0",
			"consumed boolean NOT NULL DEFAULT false",
		},
		"*_create_usage_stats_table.sql": {
			"CONSTRAINT usage_stats_license_id_period_key UNIQUE (license_id, period)",
		},
	}

	for pattern, statements := range checks {
		matches, err := fs.Glob(migrations.FS, pattern)
		if err != nil {
			t.Fatalf("glob %s: %v", pattern, err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %v", pattern, matches)
		}
		data, err := fs.ReadFile(migrations.FS, matches[0])
		if err != nil {
			t.Fatalf("read %s: %v", matches[0], err)
		}
		for _, stmt := range statements {
			if !strings.Contains(string(data), stmt) {
				t.Errorf("%s missing %q", matches[0], stmt)
			}
		}
	}
}

func TestCreateSQLMigrationWritesGooseMarkers(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add License Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(filepath.Base(path), "_add_license_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration failed validation: %v", err)
	}
}

func TestValidateDirRejectsMissingMarkers(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "20260101000000_broken.sql")
	if err := os.WriteFile(bad, []byte("CREATE TABLE x();"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected validation error")
	}
}
