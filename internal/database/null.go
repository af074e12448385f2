package database

import "time"

// Int64Ptr returns the column as a pointer (nil if NULL)
func (r Row) Int64Ptr(col string) *int64 {
	if r.IsNull(col) {
		return nil
	}
	v := r.Int64(col)
	return &v
}

// TimePtr returns the column as a pointer (nil if NULL or unparsable)
func (r Row) TimePtr(col string) *time.Time {
	t := r.Time(col)
	if t.IsZero() {
		return nil
	}
	return &t
}

// nullableString stores empty strings as NULL
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
