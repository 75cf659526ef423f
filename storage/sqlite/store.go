// Package sqlite provides a SQLite implementation of the storage.Store
// interface backed by mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	syncErrors "github.com/driftsync/driftsync/errors"
	"github.com/driftsync/driftsync/logging"
	"github.com/driftsync/driftsync/storage"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Operation constants for consistent error reporting
const (
	opGet    = "sqlite.Get"
	opPut    = "sqlite.Put"
	opDelete = "sqlite.Delete"
	opGetAll = "sqlite.GetAll"
)

const component = "storage/sqlite"

// Config holds configuration options for the SQLite store.
//
// Production-ready defaults are applied by DefaultConfig() including:
//   - WAL mode enabled for better concurrency
//   - Connection pool with 25 max open, 5 max idle connections
//   - Connection lifetimes of 1 hour max, 5 minutes max idle
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	// Example: "file:driftsync.db?_journal_mode=WAL"
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// When true, automatically appends "?_journal_mode=WAL" to
	// DataSourceName unless a journal mode is already set.
	EnableWAL bool

	// TableName is the name of the table holding records.
	// Defaults to "records" if empty.
	TableName string

	// Connection pool settings for production workloads.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h, IdleTime=5m
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.TableName == "" {
		c.TableName = "records"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "_journal_mode=") {
			c.DataSourceName += "?_journal_mode=WAL"
		}
	}
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// Store implements storage.Store on a SQLite database.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	closed    bool
	tableName string
}

// Compile-time check against the storage interface
var _ storage.Store = (*Store)(nil)

// NewWithDataSource is a convenience constructor using DefaultConfig.
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

// New creates a Store from a Config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	config.setDefaults()

	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.WithComponent(logging.Component("sqlite-store"))
	logger.InfoContext(context.Background(), "Opening SQLite database",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &Store{
		db:        db,
		tableName: config.TableName,
	}

	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	logger.InfoContext(context.Background(), "SQLite store initialized",
		slog.String("table_name", config.TableName),
	)
	return store, nil
}

// setupSchema creates the records table if it doesn't exist.
func (s *Store) setupSchema() error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        collection  TEXT NOT NULL,
        key         TEXT NOT NULL,
        value       BLOB NOT NULL,
        updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (collection, key)
    );
    CREATE INDEX IF NOT EXISTS idx_%s_collection ON %s (collection);
    `, s.tableName, s.tableName, s.tableName)
	_, err := s.db.Exec(query)
	return err
}

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, storage.ErrStoreClosed
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(`SELECT value FROM %s WHERE collection = ? AND key = ?`, s.tableName)
	var value []byte
	err := s.db.QueryRowContext(ctx, query, collection, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, syncErrors.WrapOpComponent(err, opGet, component)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, collection, key string, value []byte) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return storage.ErrStoreClosed
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(`
        INSERT INTO %s (collection, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		s.tableName)
	if _, err := s.db.ExecContext(ctx, query, collection, key, value); err != nil {
		return syncErrors.WrapOpComponent(err, opPut, component)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return storage.ErrStoreClosed
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(`DELETE FROM %s WHERE collection = ? AND key = ?`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, collection, key); err != nil {
		return syncErrors.WrapOpComponent(err, opDelete, component)
	}
	return nil
}

func (s *Store) GetAll(ctx context.Context, collection string) (map[string][]byte, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, storage.ErrStoreClosed
	}
	s.mu.RUnlock()

	query := fmt.Sprintf(`SELECT key, value FROM %s WHERE collection = ? ORDER BY key ASC`, s.tableName)
	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, syncErrors.WrapOpComponent(err, opGetAll, component)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, syncErrors.WrapOpComponent(err, opGetAll, component)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, syncErrors.WrapOpComponent(err, opGetAll, component)
	}
	return out, nil
}

// Close closes the underlying database. Further calls to any method
// return storage.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	s.closed = true
	return s.db.Close()
}
