package database

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// SelectQuery narrows a generic Select. The zero value selects every row.
type SelectQuery struct {
	Where   Fields
	OrderBy string
	Limit   int
}

// Insert writes one row with exactly the given columns and returns its id.
func (db *DB) Insert(table string, fields Fields) (int64, error) {
	if err := db.lock("insert"); err != nil {
		return 0, err
	}
	defer db.mu.Unlock()
	return insertWith(db.conn, table, fields)
}

// Select returns rows of table matching q.
func (db *DB) Select(table string, q SelectQuery) ([]Row, error) {
	if err := db.lock("select"); err != nil {
		return nil, err
	}
	defer db.mu.Unlock()
	return selectWith(db.conn, table, q)
}

// Update sets fields on every row matching where and returns the number of
// rows changed.
func (db *DB) Update(table string, fields, where Fields) (int64, error) {
	if err := db.lock("update"); err != nil {
		return 0, err
	}
	defer db.mu.Unlock()
	return updateWith(db.conn, table, fields, where)
}

// Delete removes every row matching where and returns the number removed.
func (db *DB) Delete(table string, where Fields) (int64, error) {
	if err := db.lock("delete"); err != nil {
		return 0, err
	}
	defer db.mu.Unlock()
	return deleteWith(db.conn, table, where)
}

// Insert is DB.Insert inside the transaction.
func (tx *Tx) Insert(table string, fields Fields) (int64, error) {
	return insertWith(tx.tx, table, fields)
}

// Select is DB.Select inside the transaction.
func (tx *Tx) Select(table string, q SelectQuery) ([]Row, error) {
	return selectWith(tx.tx, table, q)
}

// Update is DB.Update inside the transaction.
func (tx *Tx) Update(table string, fields, where Fields) (int64, error) {
	return updateWith(tx.tx, table, fields, where)
}

// Delete is DB.Delete inside the transaction.
func (tx *Tx) Delete(table string, where Fields) (int64, error) {
	return deleteWith(tx.tx, table, where)
}

func insertWith(r runner, table string, fields Fields) (int64, error) {
	query, args, err := buildInsert(table, fields)
	if err != nil {
		return 0, err
	}
	res, err := execWith(r, "insert into "+table, query, args)
	if err != nil {
		return 0, err
	}
	log.Debug().Str("table", table).Int64("id", res.LastInsertID).Msg("Record inserted")
	return res.LastInsertID, nil
}

func selectWith(r runner, table string, q SelectQuery) ([]Row, error) {
	query, args, err := buildSelect(table, q)
	if err != nil {
		return nil, err
	}
	return queryWith(r, "select from "+table, query, args)
}

func updateWith(r runner, table string, fields, where Fields) (int64, error) {
	query, args, err := buildUpdate(table, fields, where)
	if err != nil {
		return 0, err
	}
	res, err := execWith(r, "update "+table, query, args)
	if err != nil {
		return 0, err
	}
	log.Debug().Str("table", table).Int64("rows", res.RowsAffected).Msg("Records updated")
	return res.RowsAffected, nil
}

func deleteWith(r runner, table string, where Fields) (int64, error) {
	query, args, err := buildDelete(table, where)
	if err != nil {
		return 0, err
	}
	res, err := execWith(r, "delete from "+table, query, args)
	if err != nil {
		return 0, err
	}
	log.Debug().Str("table", table).Int64("rows", res.RowsAffected).Msg("Records deleted")
	return res.RowsAffected, nil
}

func buildInsert(table string, fields Fields) (string, []any, error) {
	const op = "insert"
	if err := checkIdentifier(op, "table", table); err != nil {
		return "", nil, err
	}
	if len(fields) == 0 {
		return "", nil, validationError(op, "no fields to insert into %s", table)
	}

	cols, err := sortedColumns(op, fields)
	if err != nil {
		return "", nil, err
	}

	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = fields[col]
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")"
	return query, args, nil
}

func buildSelect(table string, q SelectQuery) (string, []any, error) {
	const op = "select"
	if err := checkIdentifier(op, "table", table); err != nil {
		return "", nil, err
	}
	if q.Limit < 0 {
		return "", nil, validationError(op, "negative limit %d", q.Limit)
	}

	where, args, err := whereClause(op, q.Where)
	if err != nil {
		return "", nil, err
	}
	orderBy, err := normalizeOrderBy(op, q.OrderBy)
	if err != nil {
		return "", nil, err
	}

	query := "SELECT * FROM " + table + where
	if orderBy != "" {
		query += " ORDER BY " + orderBy
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return query, args, nil
}

func buildUpdate(table string, fields, where Fields) (string, []any, error) {
	const op = "update"
	if err := checkIdentifier(op, "table", table); err != nil {
		return "", nil, err
	}
	if len(fields) == 0 {
		return "", nil, validationError(op, "no fields to update in %s", table)
	}
	if len(where) == 0 {
		return "", nil, validationError(op, "refusing to update every row of %s", table)
	}

	cols, err := sortedColumns(op, fields)
	if err != nil {
		return "", nil, err
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(where))
	for i, col := range cols {
		sets[i] = col + " = ?"
		args = append(args, fields[col])
	}

	whereSQL, whereArgs, err := whereClause(op, where)
	if err != nil {
		return "", nil, err
	}
	args = append(args, whereArgs...)

	return "UPDATE " + table + " SET " + strings.Join(sets, ", ") + whereSQL, args, nil
}

func buildDelete(table string, where Fields) (string, []any, error) {
	const op = "delete"
	if err := checkIdentifier(op, "table", table); err != nil {
		return "", nil, err
	}
	if len(where) == 0 {
		return "", nil, validationError(op, "refusing to delete every row of %s", table)
	}

	whereSQL, args, err := whereClause(op, where)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + table + whereSQL, args, nil
}
