package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const periodLayout = "2006-01"

// Period is a billing month in YYYY-MM form.
type Period string

// ParsePeriod validates s and returns it as a Period.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil || t.Format(periodLayout) != s {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period(s), nil
}

// PeriodOf returns the period containing t, evaluated in loc.
func PeriodOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	return Period(t.In(loc).Format(periodLayout))
}

// Bounds returns the half-open interval [start, end) covered by the period.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(periodLayout, string(p), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, string(p))
	}
	return t, t.AddDate(0, 1, 0), nil
}

func (p Period) String() string { return string(p) }

// Value implements driver.Valuer.
func (p Period) Value() (driver.Value, error) { return string(p), nil }

// Scan implements sql.Scanner.
func (p *Period) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*p = Period(v)
	case []byte:
		*p = Period(string(v))
	case nil:
		*p = ""
	default:
		return fmt.Errorf("cannot scan %T into Period", src)
	}
	return nil
}
