package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// connectionPragmas are applied to every connection the driver opens.
// Foreign key enforcement is off by default in SQLite.
const connectionPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// DB owns the single SQLite connection. Every statement goes through mu, so a
// background goroutine and a request handler never use the connection at the
// same time.
type DB struct {
	conn   *sql.DB
	path   string
	mu     sync.Mutex
	closed bool
}

// Open opens or creates the database file at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, &Error{Kind: KindConnection, Op: "open", Err: errors.New("empty database path")}
	}

	conn, err := sql.Open("sqlite", dataSourceName(path))
	if err != nil {
		return nil, &Error{Kind: KindConnection, Op: "open", Err: fmt.Errorf("failed to open database: %w", err)}
	}

	// One connection: an in-memory database lives and dies with it, and a
	// single writer is all this store supports.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	// sql.Open is lazy and the file header is only read on first use, so
	// force a real read to reject files that are not databases.
	var version int64
	if err := conn.QueryRow("PRAGMA schema_version").Scan(&version); err != nil {
		_ = conn.Close()
		return nil, &Error{Kind: KindConnection, Op: "open", Err: fmt.Errorf("failed to read database %s: %w", path, err)}
	}

	log.Debug().Str("path", path).Msg("Database connection established")

	return &DB{
		conn: conn,
		path: path,
	}, nil
}

// OpenMemory opens a fresh in-memory database.
func OpenMemory() (*DB, error) {
	return Open(MemoryPath)
}

// dataSourceName appends the connection pragmas to path, which may already
// be a file: URI with its own query.
func dataSourceName(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + connectionPragmas
	}
	return path + "?" + connectionPragmas
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Close releases the connection. Calling it more than once is a no-op.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	if err := db.conn.Close(); err != nil {
		return &Error{Kind: KindConnection, Op: "close", Err: err}
	}
	log.Debug().Str("path", db.path).Msg("Database connection closed")
	return nil
}

// lock acquires the connection gate and fails if the database was closed.
func (db *DB) lock(op string) error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return &Error{Kind: KindConnection, Op: op, Err: errors.New("database is closed")}
	}
	return nil
}

// Transaction runs fn inside a transaction holding the connection gate.
// fn must only use tx; calling back into db from fn deadlocks.
func (db *DB) Transaction(fn func(tx *Tx) error) error {
	if err := db.lock("begin"); err != nil {
		return err
	}
	defer db.mu.Unlock()

	sqlTx, err := db.conn.Begin()
	if err != nil {
		return classify("begin", "BEGIN", fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classify("commit", "COMMIT", fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}
