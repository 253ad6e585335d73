package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rutas-academicas/pkg/config"
)

func TestResolveTarget(t *testing.T) {
	cases := []struct {
		name   string
		cfg    config.DatabaseConfig
		driver string
		dsn    string
	}{
		{
			name:   "default data dir",
			cfg:    config.DatabaseConfig{DataDir: "var"},
			driver: DriverSQLite,
			dsn:    "file:" + filepath.Join("var", "app.db") + "?_foreign_keys=on&_busy_timeout=5000",
		},
		{
			name:   "postgres url",
			cfg:    config.DatabaseConfig{URL: "postgres://u:p@localhost/rutas?sslmode=disable"},
			driver: DriverPostgres,
			dsn:    "postgres://u:p@localhost/rutas?sslmode=disable",
		},
		{
			name:   "postgresql scheme",
			cfg:    config.DatabaseConfig{URL: "postgresql://db/rutas"},
			driver: DriverPostgres,
			dsn:    "postgresql://db/rutas",
		},
		{
			name:   "sqlite absolute",
			cfg:    config.DatabaseConfig{URL: "sqlite:////tmp/rutas.db"},
			driver: DriverSQLite,
			dsn:    "file:/tmp/rutas.db?_foreign_keys=on&_busy_timeout=5000",
		},
		{
			name:   "sqlite relative",
			cfg:    config.DatabaseConfig{URL: "sqlite://rutas.db"},
			driver: DriverSQLite,
			dsn:    "file:rutas.db?_foreign_keys=on&_busy_timeout=5000",
		},
		{
			name:   "raw file dsn",
			cfg:    config.DatabaseConfig{URL: "file::memory:?cache=shared"},
			driver: DriverSQLite,
			dsn:    "file::memory:?cache=shared",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target, err := ResolveTarget(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.driver, target.Driver)
			assert.Equal(t, tc.dsn, target.DSN)
		})
	}
}

func TestResolveTargetRejectsUnknownScheme(t *testing.T) {
	_, err := ResolveTarget(config.DatabaseConfig{URL: "mysql://db"})
	assert.Error(t, err)
}

func TestOpenCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	db, err := Open(config.DatabaseConfig{DataDir: dir})
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, filepath.Join(dir, "app.db"))
}
