package services

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD value in the server's timezone. field
// names the input in the returned validation error.
func ParseDate(field, value string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.Local)
	if err != nil {
		return time.Time{}, NewValidationError(field, "date must use the YYYY-MM-DD format")
	}
	return d, nil
}

// ParseOptionalDate is ParseDate for filters: an empty value yields the zero time.
func ParseOptionalDate(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return ParseDate(field, value)
}

// DayBounds returns [start, end) of the calendar day containing t, in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
