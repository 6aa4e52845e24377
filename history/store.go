// Package history persists the records of completed script runs.
//
// FileStore keeps every record in a single JSON array shared by all
// processes using the same log directory. Writers serialize through an
// advisory lock and replace the file atomically, so readers always see a
// complete JSON document.
package history

import (
	"errors"
	"sort"
)

const (
	// DefaultPerPage is used when a query asks for a non-positive page size.
	DefaultPerPage = 10
	// MaxPerPage caps the page size of a query.
	MaxPerPage = 100
)

// ErrCorrupt is returned by queries when the history file can't be parsed.
var ErrCorrupt = errors.New("history file is corrupt")

// Store manages persistence of run history.
type Store interface {
	// Append adds a completed run.
	Append(Record) error
	// Page returns records sorted by start time, newest first.
	Page(page, perPage int) (Page, error)
	// Clear removes all records and their log files.
	Clear() error
}

// paginate sorts records newest first and slices out the requested page.
// Pages out of range produce an empty slice, not an error.
func paginate(records []Record, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sortNewestFirst(sorted)

	total := len(sorted)
	result := Page{
		Records: []Record{},
		Page:    page,
		Pages:   (total + perPage - 1) / perPage,
		Total:   total,
	}
	if page < 1 || page > result.Pages {
		return result
	}

	start := (page - 1) * perPage
	if start >= total {
		return result
	}
	end := min(start+perPage, total)
	result.Records = sorted[start:end]
	return result
}

func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Start.After(records[j].Start)
	})
}
