package db

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

// Time stores timestamps as integer Unix nanoseconds so values
// round-trip identically on SQLite and PostgreSQL. The zero value
// maps to SQL NULL.
type Time struct {
	time.Time
}

// Now returns the current time as a db.Time in UTC.
func Now() Time {
	return Time{Time: time.Now().UTC()}
}

// NewTime wraps a time.Time as a db.Time in UTC.
func NewTime(t time.Time) Time {
	return Time{Time: t.UTC()}
}

// Value implements driver.Valuer.
func (t Time) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UnixNano(), nil
}

// Scan implements sql.Scanner.
func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case int64:
		t.Time = time.Unix(0, v).UTC()
		return nil
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	case time.Time:
		t.Time = v.UTC()
		return nil
	default:
		return fmt.Errorf("cannot scan %T into db.Time", src)
	}
}

func (t *Time) scanString(s string) error {
	nanos, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("cannot scan %q into db.Time: %w", s, err)
	}
	t.Time = time.Unix(0, nanos).UTC()
	return nil
}
