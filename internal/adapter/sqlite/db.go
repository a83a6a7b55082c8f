// Package sqlite persists conversations, accounts and reference data in a
// single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	migrate "github.com/rubenv/sql-migrate"
	_ "modernc.org/sqlite"

	"egyptoai/internal/domain"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// migrationDialect selects sql-migrate's SQLite dialect; it works with any
// database/sql SQLite driver.
const migrationDialect = "sqlite3"

// DB is the shared database handle for all stores in this package.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path, enables WAL and foreign
// keys, and applies pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open db: %w", err)
	}

	d := &DB{db: db}
	if _, err := d.Migrate(migrate.Up); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Migrate applies migrations in the given direction and returns how many ran.
func (d *DB) Migrate(dir migrate.MigrationDirection) (int, error) {
	n, err := migrate.Exec(d.db, migrationDialect, migrations, dir)
	if err != nil {
		return n, fmt.Errorf("migrate: %w", err)
	}
	return n, nil
}

// Ping checks connectivity for the health endpoint.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func newID() string {
	return ulid.Make().String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// storeErr wraps a driver failure so callers can classify it as ErrStore.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStore, err)
}
