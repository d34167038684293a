// Package storage opens the per-service SQLite databases and applies their
// embedded migrations.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // driver "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // driver "sqlite", 100% Go
)

const (
	DriverModernc = "sqlite"
	DriverCgo     = "sqlite3"
)

// Open returns a handle on the database at path. Both drivers get a busy
// timeout, WAL and foreign keys so cascades on cart and order items work.
func Open(driver, path string) (*sql.DB, error) {
	if driver == "" {
		driver = DriverModernc
	}
	dsn, err := dsnFor(driver, path)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	// un solo escritor evita "database is locked"
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(2 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	return db, nil
}

func dsnFor(driver, path string) (string, error) {
	switch driver {
	case DriverModernc:
		return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", nil
	case DriverCgo:
		return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}
