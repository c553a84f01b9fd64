// Package db opens the sqlite database that backs the persistent response cache.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultReaderConns is the size of the read-only pool.
const DefaultReaderConns = 4

// DBPair holds a single-connection writer and a read-only pool over the same
// WAL-mode database, so cache reads never wait behind a write.
type DBPair struct {
	reader *sql.DB
	writer *sql.DB
}

func (p *DBPair) Reader() *sql.DB { return p.reader }

func (p *DBPair) Writer() *sql.DB { return p.writer }

// Close closes both pools.
func (p *DBPair) Close() error {
	return errors.Join(
		wrap("close reader", p.reader.Close()),
		wrap("close writer", p.writer.Close()),
	)
}

// Options tunes Open.
type Options struct {
	ReaderConns int           // Optional: defaults to DefaultReaderConns
	BusyTimeout time.Duration // Optional: defaults to 5s
}

// Init opens dbPath with default options.
func Init(dbPath string) (*DBPair, error) {
	return Open(dbPath, Options{})
}

// Open creates the parent directory if needed, opens the writer, migrates the
// schema, then opens the reader pool. The sqlite3 driver must be registered by
// the caller.
func Open(dbPath string, opts Options) (*DBPair, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if opts.ReaderConns <= 0 {
		opts.ReaderConns = DefaultReaderConns
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	writer, err := sql.Open("sqlite3", dsn(dbPath, "rwc", opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(time.Hour)

	if err := migrate(writer); err != nil {
		writer.Close()
		return nil, err
	}

	// The read-only pool is opened after migration so it never sees a missing table.
	reader, err := sql.Open("sqlite3", dsn(dbPath, "ro", opts.BusyTimeout))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(opts.ReaderConns)
	reader.SetMaxIdleConns((opts.ReaderConns + 1) / 2)
	reader.SetConnMaxLifetime(time.Hour)

	return &DBPair{reader: reader, writer: writer}, nil
}

// SchemaVersion reports the migration level of the database.
func (p *DBPair) SchemaVersion() (int, error) {
	var version int
	if err := p.reader.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func dsn(path, mode string, busy time.Duration) string {
	return fmt.Sprintf("%s?_journal=WAL&_busy_timeout=%d&cache=shared&mode=%s", path, busy.Milliseconds(), mode)
}

// migrate applies every migration above the stored user_version in one transaction each.
func migrate(writer *sql.DB) error {
	if _, err := writer.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL: %w", err)
	}

	var current int
	if err := writer.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := writer.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}
	return nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
