package ops

import (
	"strings"
	"time"

	"github.com/hpungsan/almanac/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100

	// Context window sizes read by absorption.
	RecentNotesLimit   = 3
	RecentEntriesLimit = 10
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// normalizeLimit applies the default and cap to a requested page size.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// requireProjectID rejects non-positive project ids before any lookup.
func requireProjectID(id int64) error {
	if id <= 0 {
		return errors.NewInvalidRequest("project_id must be a positive integer")
	}
	return nil
}

// requireText trims s and rejects it if empty.
func requireText(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.NewInvalidRequest(field + " must not be empty")
	}
	return s, nil
}

// DateLayout is the calendar date format used for daily notes.
const DateLayout = "2006-01-02"

// requireDate validates a YYYY-MM-DD date.
func requireDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", errors.NewInvalidRequest("date must be YYYY-MM-DD")
	}
	return s, nil
}
