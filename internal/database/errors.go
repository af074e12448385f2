package database

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Kind classifies every failure that leaves this package.
type Kind int

const (
	KindConnection Kind = iota + 1
	KindSchema
	KindIntegrity
	KindQuery
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindSchema:
		return "schema"
	case KindIntegrity:
		return "integrity"
	case KindQuery:
		return "query"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is the only error type returned by the database package.
// Statement holds the SQL text with placeholders; bound values are never kept.
type Error struct {
	Kind      Kind
	Op        string
	Statement string
	Err       error
}

// Sentinels for errors.Is matching on kind alone.
var (
	ErrConnection = &Error{Kind: KindConnection}
	ErrSchema     = &Error{Kind: KindSchema}
	ErrIntegrity  = &Error{Kind: KindIntegrity}
	ErrQuery      = &Error{Kind: KindQuery}
	ErrValidation = &Error{Kind: KindValidation}
)

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Statement == "" && t.Err == nil
}

// KindOf returns the kind of err, or 0 when err did not come from this package.
func KindOf(err error) Kind {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Kind
	}
	return 0
}

func validationError(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func integrityError(op, format string, args ...any) error {
	return &Error{Kind: KindIntegrity, Op: op, Err: fmt.Errorf(format, args...)}
}

// classify turns a driver error into an *Error. Errors that are already
// classified pass through unchanged.
func classify(op, statement string, err error) error {
	if err == nil {
		return nil
	}
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return err
	}

	kind := KindQuery
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			kind = KindIntegrity
		case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_READONLY,
			sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_PERM, sqlite3.SQLITE_FULL:
			kind = KindConnection
		}
	}

	return &Error{Kind: kind, Op: op, Statement: statement, Err: err}
}

// constraintCode returns the extended SQLite result code for constraint
// failures, or 0.
func constraintCode(err error) int {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return sqliteErr.Code()
	}
	return 0
}

// IsUniqueViolation reports whether err was caused by a UNIQUE or PRIMARY KEY
// constraint.
func IsUniqueViolation(err error) bool {
	code := constraintCode(err)
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// IsForeignKeyViolation reports whether err was caused by a FOREIGN KEY constraint.
func IsForeignKeyViolation(err error) bool {
	return constraintCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}
