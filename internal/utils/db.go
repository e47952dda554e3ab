// Package utils: connection openers for the configured store and cache
package utils

import (
	"database/sql"
	"fmt"
	"org-directory/internal/config"
	"org-directory/internal/logger"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// OpenDB: open the pool for cfg.Driver and verify it with a ping
func OpenDB(cfg config.Database) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return OpenPostgres(cfg.DSN, cfg.MaxOpen, cfg.MaxIdle)
	case config.DriverSQLite:
		return OpenSQLite(cfg.SQLitePath)
	}
	return nil, fmt.Errorf("utils: unsupported driver %q", cfg.Driver)
}

func OpenPostgres(dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen <= 0 {
		maxOpen = 50
	}
	if maxIdle <= 0 {
		maxIdle = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("utils: postgres ping: %w", err)
	}
	return db, nil
}

// OpenSQLite: single-connection pool with foreign keys on; ":memory:" keeps one private database
// Constraint: one connection, so a read transaction holds the whole pool until it ends
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("utils: sqlite dir: %w", err)
		}
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+"_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("utils: sqlite ping: %w", err)
	}
	logger.L().Debug("sqlite_open", "path", path)
	return db, nil
}
