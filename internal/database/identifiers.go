package database

import (
	"regexp"
	"sort"
	"strings"
)

// Table and column names cannot be bound as parameters, so they are checked
// against this pattern before being placed in SQL text.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var orderTermPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:\s+(?i:(asc|desc)))?$`)

// hiddenColumns hold secrets. Reports refuse them as group or time columns,
// and callers strip them from anything they return.
var hiddenColumns = map[string]bool{"password_hash": true}

// HiddenColumn reports whether col holds a secret that must not leave the
// store.
func HiddenColumn(col string) bool {
	return hiddenColumns[strings.ToLower(strings.TrimSpace(col))]
}

// OrderByHidden reports whether any term of an order by list names a hidden
// column.
func OrderByHidden(orderBy string) bool {
	for term := range strings.SplitSeq(orderBy, ",") {
		if fields := strings.Fields(term); len(fields) > 0 && HiddenColumn(fields[0]) {
			return true
		}
	}
	return false
}

func checkIdentifier(op, kind, name string) error {
	if !identifierPattern.MatchString(name) {
		return validationError(op, "invalid %s name %q", kind, name)
	}
	return nil
}

// sortedColumns validates and sorts the keys of fields so generated SQL is
// stable across calls.
func sortedColumns(op string, fields Fields) ([]string, error) {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		if err := checkIdentifier(op, "column", col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols, nil
}

// normalizeOrderBy validates a "col [ASC|DESC], ..." list and returns it in
// canonical form.
func normalizeOrderBy(op, orderBy string) (string, error) {
	orderBy = strings.TrimSpace(orderBy)
	if orderBy == "" {
		return "", nil
	}

	terms := strings.Split(orderBy, ",")
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.Join(strings.Fields(term), " ")
		m := orderTermPattern.FindStringSubmatch(term)
		if m == nil {
			return "", validationError(op, "invalid order by term %q", term)
		}
		if m[2] != "" {
			out = append(out, m[1]+" "+strings.ToUpper(m[2]))
		} else {
			out = append(out, m[1])
		}
	}
	return strings.Join(out, ", "), nil
}

// whereClause builds an AND of equality tests. A nil value matches NULL.
func whereClause(op string, where Fields) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	cols, err := sortedColumns(op, where)
	if err != nil {
		return "", nil, err
	}

	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		if bindValue(where[col]) == nil {
			parts = append(parts, col+" IS NULL")
			continue
		}
		parts = append(parts, col+" = ?")
		args = append(args, where[col])
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}
