package fsys

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotFound reports a missing file or directory.
	ErrNotFound = errors.New("not found")

	// ErrPermission reports an access denied by the
	// filesystem.
	ErrPermission = errors.New("permission denied")

	// ErrExist reports a create that raced with an
	// existing entry.
	ErrExist = errors.New("already exists")

	// ErrIO covers every other read, write or copy
	// failure (disk full, truncated read, ...).
	ErrIO = errors.New("i/o failure")
)

// Error is a classified filesystem failure. Kind is one
// of the package sentinels; Err is the underlying cause.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf(
		"%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err,
	)
}

// Unwrap exposes both the kind and the cause so that
// errors.Is matches either.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Classify wraps err into an *Error carrying the
// operation and path. Already classified errors are
// returned unchanged. A nil err yields nil.
func Classify(op string, path string, err error) error {
	if err == nil {
		return nil
	}

	var fe *Error
	if errors.As(err, &fe) {
		return err
	}

	return &Error{
		Op:   op,
		Path: path,
		Kind: kindFor(err),
		Err:  err,
	}
}

// KindOf returns the sentinel describing err, or nil
// when err is nil. Unclassified errors are ErrIO.
func KindOf(err error) error {
	if err == nil {
		return nil
	}

	for _, kind := range []error{
		ErrNotFound, ErrPermission, ErrExist, ErrIO,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return kindFor(err)
}

func kindFor(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermission
	case errors.Is(err, fs.ErrExist):
		return ErrExist
	default:
		return ErrIO
	}
}
