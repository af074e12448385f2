package database

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
)

// Result reports the outcome of a mutating statement.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
}

// Tx is a transaction handed to the function passed to DB.Transaction.
type Tx struct {
	tx *sql.Tx
}

// Exec runs one parameterized statement and commits it.
func (db *DB) Exec(query string, args ...any) (Result, error) {
	if err := db.lock("exec"); err != nil {
		return Result{}, err
	}
	defer db.mu.Unlock()
	return execWith(db.conn, "exec", query, args)
}

// Query runs one parameterized statement and returns every row.
func (db *DB) Query(query string, args ...any) ([]Row, error) {
	if err := db.lock("query"); err != nil {
		return nil, err
	}
	defer db.mu.Unlock()
	return queryWith(db.conn, "query", query, args)
}

// QueryRow returns the first row of the result, or nil when there is none.
func (db *DB) QueryRow(query string, args ...any) (Row, error) {
	rows, err := db.Query(query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Exec runs one statement inside the transaction.
func (tx *Tx) Exec(query string, args ...any) (Result, error) {
	return execWith(tx.tx, "exec", query, args)
}

// Query runs one statement inside the transaction and returns every row.
func (tx *Tx) Query(query string, args ...any) ([]Row, error) {
	return queryWith(tx.tx, "query", query, args)
}

// QueryRow returns the first row of the result, or nil when there is none.
func (tx *Tx) QueryRow(query string, args ...any) (Row, error) {
	rows, err := tx.Query(query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func execWith(r runner, op, query string, args []any) (Result, error) {
	res, err := r.Exec(query, bindArgs(args)...)
	if err != nil {
		err = classify(op, query, err)
		logFailure(err, query, len(args))
		return Result{}, err
	}

	var out Result
	// SQLite reports both for every statement; errors here are not expected.
	out.LastInsertID, _ = res.LastInsertId()
	out.RowsAffected, _ = res.RowsAffected()
	return out, nil
}

func queryWith(r runner, op, query string, args []any) ([]Row, error) {
	rows, err := r.Query(query, bindArgs(args)...)
	if err != nil {
		err = classify(op, query, err)
		logFailure(err, query, len(args))
		return nil, err
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		err = classify(op, query, err)
		logFailure(err, query, len(args))
		return nil, err
	}
	return out, nil
}

func logFailure(err error, query string, params int) {
	evt := log.Debug()
	if KindOf(err) != KindIntegrity {
		evt = log.Error()
	}
	evt.Err(err).Str("statement", query).Int("params", params).Msg("Statement failed")
}

// bindArgs converts values to the representations stored on disk.
// Times become fixed-width ISO-8601 UTC text and booleans become 0/1.
func bindArgs(args []any) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		out[i] = bindValue(arg)
	}
	return out
}

func bindValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return FormatTime(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return FormatTime(*val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case *int64:
		if val == nil {
			return nil
		}
		return *val
	case *string:
		if val == nil {
			return nil
		}
		return *val
	case *float64:
		if val == nil {
			return nil
		}
		return *val
	default:
		return v
	}
}
