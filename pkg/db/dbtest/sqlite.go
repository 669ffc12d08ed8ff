// Package dbtest opens throwaway sqlite databases that mirror the Postgres
// schema closely enough for repository tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS licenses (
  id TEXT PRIMARY KEY,
  license_key TEXT NOT NULL,
  email TEXT NOT NULL,
  company_name TEXT NOT NULL,
  company_phone TEXT,
  company_license_number TEXT,
  inspector_name TEXT NOT NULL,
  inspector_license TEXT NOT NULL,
  license_type TEXT NOT NULL DEFAULT 'individual',
  is_active INTEGER NOT NULL DEFAULT 1,
  activated_at DATETIME,
  expires_at DATETIME,
  last_validated_at DATETIME,
  flagged_multi_device INTEGER NOT NULL DEFAULT 0,
  device_count INTEGER NOT NULL DEFAULT 0,
  admin_notes TEXT,
  stripe_session_id TEXT,
  stripe_payment_intent_id TEXT,
  stripe_customer_id TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT licenses_license_key_key UNIQUE (license_key),
  CONSTRAINT licenses_stripe_session_id_key UNIQUE (stripe_session_id)
);
CREATE TABLE IF NOT EXISTS devices (
  id TEXT PRIMARY KEY,
  license_id TEXT NOT NULL,
  device_id TEXT NOT NULL,
  device_model TEXT,
  os_version TEXT,
  first_activated_at DATETIME NOT NULL,
  last_used_at DATETIME NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT devices_license_id_device_id_key UNIQUE (license_id, device_id)
);
CREATE TABLE IF NOT EXISTS verification_codes (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  code_hash TEXT NOT NULL,
  flow TEXT NOT NULL,
  expires_at DATETIME NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  consumed INTEGER NOT NULL DEFAULT 0,
  consumed_at DATETIME,
  created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS usage_stats (
  id TEXT PRIMARY KEY,
  license_id TEXT NOT NULL,
  period TEXT NOT NULL,
  report_count INTEGER NOT NULL DEFAULT 0,
  last_reported_at DATETIME NOT NULL,
  created_at DATETIME,
  CONSTRAINT usage_stats_license_id_period_key UNIQUE (license_id, period)
);`

// Open returns a gorm handle to a private in-memory database with the
// license schema applied.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=UTC", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
