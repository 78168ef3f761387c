package sidecar

import (
	"errors"
	"fmt"

	"github.com/byte4ever/secure_backup/integrity/digest"
)

// Status is the outcome of comparing a file with its
// record.
type Status int

const (
	// StatusMatch means the file still has the
	// recorded digest.
	StatusMatch Status = iota
	// StatusMismatch means the content changed since
	// the record was written.
	StatusMismatch
	// StatusNoBaseline means no record exists yet.
	StatusNoBaseline
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusMatch:
		return "match"
	case StatusMismatch:
		return "mismatch"
	default:
		return "no_baseline"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result carries both digests of a check. Stored is
// the zero Digest when Status is StatusNoBaseline.
type Result struct {
	File    string        `json:"file"`
	Sidecar string        `json:"sidecar"`
	Current digest.Digest `json:"current"`
	Stored  digest.Digest `json:"stored"`
	Status  Status        `json:"status"`
}

// Check digests o.File and compares it with the stored
// record. It never writes. A missing record is not an
// error; a missing file is.
func Check(o Options) (Result, error) {
	const errCtx = "checking digest"

	fs := o.fs()
	res := Result{File: o.File, Sidecar: o.Path()}

	current, err := digest.ComputeFile(fs, o.File, o.ChunkSize)
	if err != nil {
		return res, fmt.Errorf("%s: %w", errCtx, err)
	}

	res.Current = current

	stored, err := Load(fs, res.Sidecar)

	switch {
	case errors.Is(err, ErrNoRecord):
		res.Status = StatusNoBaseline

		return res, nil
	case err != nil:
		return res, fmt.Errorf("%s: %w", errCtx, err)
	}

	res.Stored = stored

	if stored == current {
		res.Status = StatusMatch
	} else {
		res.Status = StatusMismatch
	}

	return res, nil
}
