// Package storage provides relational persistence for the shelter catalogue
// and the user/contact submissions, backed by SQLite through sqlair.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/canonical/sqlair"
	_ "modernc.org/sqlite"
)

// DefaultDSN is used when no data source name is configured.
const DefaultDSN = "file:shelter.db"

// MemoryDSN opens a private in-memory database. Handy for tests.
const MemoryDSN = ":memory:"

// Options configures how the database is opened.
type Options struct {
	// DSN is the SQLite data source name (file path, file: URI or :memory:).
	DSN string

	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration
}

// Store provides entity storage operations backed by SQLite.
type Store struct {
	sqlDB  *sql.DB
	db     *sqlair.DB
	logger *slog.Logger
	stmts  *statements
}

// Open opens the database, applies the schema and prepares all statements.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := opts.DSN
	if dsn == "" {
		dsn = DefaultDSN
	}
	if err := ensureParentDir(dsn); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; an in-memory database also only exists on
	// the connection that created it.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if !isMemoryDSN(dsn) {
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			logger.Debug("Failed to enable WAL journal", "error", err)
		}
	}

	s := &Store{
		sqlDB:  sqlDB,
		db:     sqlair.NewDB(sqlDB),
		logger: logger,
	}
	if err := s.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	stmts, err := prepareStatements()
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	s.stmts = stmts

	logger.Debug("Opened database", "dsn", dsn)
	return s, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == MemoryDSN || strings.Contains(dsn, "mode=memory")
}

// ensureParentDir creates the directory holding a file-backed database.
func ensureParentDir(dsn string) error {
	if isMemoryDSN(dsn) {
		return nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS shelters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_shelters_name ON shelters(name)`,
	`CREATE TABLE IF NOT EXISTS pets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		animal TEXT NOT NULL,
		sex TEXT NOT NULL,
		age INTEGER NOT NULL CHECK (age >= 0),
		description TEXT NOT NULL DEFAULT '',
		size REAL NOT NULL DEFAULT 0,
		image_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'pending')),
		shelter_id INTEGER NOT NULL REFERENCES shelters(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pets_shelter ON pets(shelter_id)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL COLLATE NOCASE,
		age INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email)`,
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	s.logger.Debug("Schema up to date", "statements", len(schema))
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// txn runs fn inside a transaction, rolling back when fn fails.
func (s *Store) txn(ctx context.Context, fn func(context.Context, *sqlair.TX) error) error {
	tx, err := s.db.Begin(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// lastInsertID extracts the row id assigned by an INSERT.
func lastInsertID(outcome sqlair.Outcome) (int64, error) {
	result := outcome.Result()
	if result == nil {
		return 0, fmt.Errorf("no result from insert")
	}
	return result.LastInsertId()
}
