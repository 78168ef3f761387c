package fsys

import (
	"io"
	"io/fs"
)

// Kind is the type of a directory entry as seen by a
// listing.
type Kind int

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindDir is a directory.
	KindDir
	// KindSymlink is a symbolic link; its target kind
	// is only known after a Stat.
	KindSymlink
	// KindOther is a device, socket, fifo or anything
	// else that carries no copyable byte content.
	KindOther
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// MarshalText renders the kind by name in JSON reports.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindFromMode maps file mode type bits to a Kind.
func KindFromMode(mode fs.FileMode) Kind {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDir
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	default:
		return KindOther
	}
}

// Entry is one immediate child of a listed directory.
type Entry struct {
	Name string
	Kind Kind
}

// AtomicFile is a pending write. Nothing is visible at
// the target path until Commit succeeds; Close without
// Commit discards the pending content. Close after a
// successful Commit is a no-op.
type AtomicFile interface {
	io.Writer
	Commit() error
	Close() error
}

// FS is the set of filesystem primitives used by this
// module. Paths use the separator convention of the
// implementation; build them with Join.
type FS interface {
	// Open opens name for reading.
	Open(name string) (io.ReadCloser, error)

	// CreateAtomic prepares a write that replaces name
	// (truncate semantics) once committed.
	CreateAtomic(
		name string,
		perm fs.FileMode,
	) (AtomicFile, error)

	// CreateExclusive creates name and fails with
	// ErrExist if it is already present.
	CreateExclusive(name string) (io.WriteCloser, error)

	// Mkdir creates a single directory level.
	Mkdir(name string, perm fs.FileMode) error

	// ReadDir lists the immediate entries of name.
	ReadDir(name string) ([]Entry, error)

	// Stat describes name, following symbolic links.
	Stat(name string) (fs.FileInfo, error)

	// Remove deletes a file or empty directory.
	Remove(name string) error

	// Join joins path elements.
	Join(elem ...string) string
}
