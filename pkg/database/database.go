package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/noah-isme/rutas-academicas/pkg/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Target is a resolved driver name plus data source name.
type Target struct {
	Driver string
	DSN    string
}

// ResolveTarget turns the storage options into a concrete driver/DSN pair.
// An explicit URL wins; otherwise a SQLite file under the data directory is used.
func ResolveTarget(cfg config.DatabaseConfig) (Target, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return Target{Driver: DriverSQLite, DSN: sqliteDSN(cfg.SQLitePath())}, nil
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Target{Driver: DriverPostgres, DSN: raw}, nil
	case strings.HasPrefix(lower, "sqlite:///"):
		return Target{Driver: DriverSQLite, DSN: sqliteDSN(raw[len("sqlite:///"):])}, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return Target{Driver: DriverSQLite, DSN: sqliteDSN(raw[len("sqlite://"):])}, nil
	case strings.HasPrefix(lower, "file:"):
		return Target{Driver: DriverSQLite, DSN: raw}, nil
	default:
		return Target{}, fmt.Errorf("unsupported database url scheme: %q", raw)
	}
}

// Open returns a configured client for the resolved target, creating the data
// directory for file-backed SQLite databases.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	target, err := ResolveTarget(cfg)
	if err != nil {
		return nil, err
	}

	if target.Driver == DriverSQLite && strings.TrimSpace(cfg.URL) == "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath()), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sqlx.Open(target.Driver, target.DSN)
	if err != nil {
		return nil, err
	}

	if target.Driver == DriverSQLite {
		// one writer at a time; SQLite serialises writes anyway
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
}
