package model

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used on the wire
const DateLayout = "2006-01-02"

// Date is an ISO calendar date (YYYY-MM-DD). The empty Date means "no date".
type Date string

// ParseDate validates s as an ISO date. An empty string yields the empty Date.
func ParseDate(s string) (Date, error) {
	if s == "" {
		return "", nil
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date(s), nil
}

// IsZero reports whether no date is set
func (d Date) IsZero() bool {
	return d == ""
}

// Time returns the date at midnight in loc
func (d Date) Time(loc *time.Location) (time.Time, bool) {
	if d == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateLayout, string(d), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (d Date) String() string {
	return string(d)
}
