package history

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status represents the execution state of a script.
type Status int

const (
	// StatusIdle indicates the script has not run since startup.
	StatusIdle Status = iota
	// StatusRunning indicates a run is in progress.
	StatusRunning
	// StatusSuccess indicates the last run exited with code 0.
	StatusSuccess
	// StatusError indicates the last run failed to start or exited non-zero.
	StatusError
	// StatusAborted indicates the last run was cancelled by a user.
	StatusAborted
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusAborted
}

// ParseStatus converts a string to a Status.
func ParseStatus(str string) (Status, error) {
	for s := StatusIdle; s <= StatusAborted; s++ {
		if s.String() == str {
			return s, nil
		}
	}
	return StatusIdle, fmt.Errorf("unknown status %q", str)
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Record is the durable summary of one run of a script.
type Record struct {
	// ID uniquely identifies the run.
	ID string `json:"id,omitempty"`
	// Script is the catalog name of the script.
	Script string `json:"script"`
	// Args is the argument vector passed to the script.
	Args []string `json:"args,omitempty"`
	// Start is when the run started, in UTC.
	Start time.Time `json:"start"`
	// End is when the run finished. Nil while running.
	End *time.Time `json:"end"`
	// Duration is End - Start in seconds.
	Duration float64 `json:"duration"`
	// Status is the final status of the run.
	Status Status `json:"status"`
	// LogFile is the base name of the log file inside the log directory.
	LogFile string `json:"log_file"`
}

// Finish sets the end time, duration and final status of the record.
func (r *Record) Finish(end time.Time, status Status) {
	end = end.UTC()
	r.End = &end
	r.Duration = end.Sub(r.Start).Seconds()
	r.Status = status
}

// key identifies a record by script and start time.
func (r Record) key() string {
	return r.Script + "\x00" + r.Start.Format(time.RFC3339Nano)
}

// Page is one page of history, newest first.
type Page struct {
	Records []Record `json:"records"`
	Page    int      `json:"page"`
	Pages   int      `json:"pages"`
	Total   int      `json:"total"`
}

// StartTime returns the canonical start time for a run beginning at t.
// Times are kept in UTC with millisecond precision so they survive the JSON
// round trip and map to a stable log file name.
func StartTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

const logTimeLayout = "2006-01-02T15:04:05.000Z07:00"

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// LogFileName returns the log file base name for a run of script started at
// start, e.g. "auto_merge_2025-06-01T10-04-05.123Z.log".
func LogFileName(script string, start time.Time) string {
	name := unsafeNameRe.ReplaceAllString(script, "_")
	ts := strings.ReplaceAll(StartTime(start).Format(logTimeLayout), ":", "-")
	return name + "_" + ts + ".log"
}
