package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", cfg.DSN())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ApplyPragmas(db))
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "./data/chatroom.db", cfg.DatabasePath)
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 10*time.Minute, cfg.ConnMaxIdleTime)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty path", func(c *Config) { c.DatabasePath = "" }},
		{"zero connections", func(c *Config) { c.MaxConnections = 0 }},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }},
		{"zero idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{DatabasePath: "/tmp/chat.db"}
	assert.Equal(t, "/tmp/chat.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", cfg.DSN())
}

func TestMigrationManager_LoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_second.sql":    {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"001_first_one.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"README.md":         {Data: []byte("ignored")},
	}

	m := NewMigrationManager(nil, fsys)
	migrations, err := m.LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "001", migrations[0].Version)
	assert.Equal(t, "first_one", migrations[0].Description)
	assert.Equal(t, "002", migrations[1].Version)
}

func TestMigrationManager_ApplyEmbedded(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrationManager(db, Migrations())

	require.NoError(t, m.ApplyMigrations())
	require.NoError(t, m.ValidateSchema())

	versions, err := m.AppliedVersions()
	require.NoError(t, err)
	assert.Equal(t, []string{"001", "002"}, versions)

	// Re-running is a no-op.
	require.NoError(t, m.ApplyMigrations())
	versions, err = m.AppliedVersions()
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestMigrationManager_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE ok_table (id INTEGER);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE broken (;")},
	}

	m := NewMigrationManager(db, fsys)
	require.Error(t, m.ApplyMigrations())

	versions, err := m.AppliedVersions()
	require.NoError(t, err)
	assert.Equal(t, []string{"001"}, versions)
}
