package mirror

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"

	"github.com/byte4ever/secure_backup/fsys"
)

// EntryStatus is the outcome of one directory entry.
type EntryStatus int

const (
	StatusCopied EntryStatus = iota
	StatusSkipped
	StatusFailed
	StatusNotAttempted
)

// String returns the report name of the status.
func (s EntryStatus) String() string {
	switch s {
	case StatusCopied:
		return "copied"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "not_attempted"
	}
}

// MarshalText renders the status by name.
func (s EntryStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EntryResult is the report line of one entry. Digest
// is the hex digest of the copied bytes.
type EntryResult struct {
	Name   string      `json:"name"`
	Kind   fsys.Kind   `json:"kind"`
	Status EntryStatus `json:"status"`
	Bytes  int64       `json:"bytes,omitempty"`
	Digest string      `json:"digest,omitempty"`
	Reason string      `json:"reason,omitempty"`
	Err    error       `json:"-"`
}

func (r EntryResult) fail(err error) (EntryResult, error) {
	r.Status = StatusFailed
	r.Err = err
	r.Reason = err.Error()

	return r, err
}

func (r EntryResult) skip(reason string) EntryResult {
	r.Status = StatusSkipped
	r.Reason = reason

	return r
}

// Report summarizes a mirror run.
type Report struct {
	Source       string        `json:"source"`
	Dest         string        `json:"dest"`
	Created      bool          `json:"created"`
	Entries      []EntryResult `json:"entries"`
	Copied       int           `json:"copied"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	NotAttempted int           `json:"not_attempted"`
	Bytes        int64         `json:"bytes"`
}

func (r *Report) add(e EntryResult) {
	r.Entries = append(r.Entries, e)

	switch e.Status {
	case StatusCopied:
		r.Copied++
		r.Bytes += e.Bytes
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	default:
		r.NotAttempted++
	}
}

func (r *Report) markNotAttempted(entries []fsys.Entry) {
	for _, e := range entries {
		r.add(EntryResult{
			Name:   e.Name,
			Kind:   e.Kind,
			Status: StatusNotAttempted,
		})
	}
}

// Entry returns the result for name.
func (r *Report) Entry(name string) (EntryResult, bool) {
	for _, e := range r.Entries {
		if e.Name == name {
			return e, true
		}
	}

	return EntryResult{}, false
}

// Vars exposes the totals to message templates.
func (r *Report) Vars() map[string]any {
	return map[string]any{
		"copied":  r.Copied,
		"skipped": r.Skipped,
		"failed":  r.Failed,
		"bytes":   r.Bytes,
		"size":    humanize.IBytes(uint64(r.Bytes)), //nolint:gosec // sizes are non-negative
		"dest":    r.Dest,
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	const errCtx = "writing report"

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}
