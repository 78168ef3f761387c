package fsys

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dchest/safefile"
)

// OS is the local filesystem. The zero value is ready
// to use.
type OS struct{}

var _ FS = OS{}

// Open opens name for reading.
func (OS) Open(name string) (io.ReadCloser, error) {
	fi, err := os.Open(name) //nolint:gosec // caller-provided path
	if err != nil {
		return nil, Classify("open", name, err)
	}

	return fi, nil
}

// CreateAtomic writes to a temporary sibling of name
// which is renamed over name on Commit.
func (OS) CreateAtomic(
	name string,
	perm fs.FileMode,
) (AtomicFile, error) {
	fi, err := safefile.Create(name, perm)
	if err != nil {
		return nil, Classify("create", name, err)
	}

	return &osAtomicFile{File: fi, name: name}, nil
}

// CreateExclusive creates name with O_EXCL.
func (OS) CreateExclusive(
	name string,
) (io.WriteCloser, error) {
	//nolint:gosec // caller-provided path
	fi, err := os.OpenFile(
		name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600,
	)
	if err != nil {
		return nil, Classify("create", name, err)
	}

	return fi, nil
}

// Mkdir creates a single directory level.
func (OS) Mkdir(name string, perm fs.FileMode) error {
	return Classify("mkdir", name, os.Mkdir(name, perm))
}

// ReadDir lists name. Entries come back in the order
// os.ReadDir returns them.
func (OS) ReadDir(name string) ([]Entry, error) {
	des, err := os.ReadDir(name)
	if err != nil {
		return nil, Classify("readdir", name, err)
	}

	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		entries = append(entries, Entry{
			Name: de.Name(),
			Kind: KindFromMode(de.Type()),
		})
	}

	return entries, nil
}

// Stat describes name, following symbolic links.
func (OS) Stat(name string) (fs.FileInfo, error) {
	info, err := os.Stat(name)
	if err != nil {
		return nil, Classify("stat", name, err)
	}

	return info, nil
}

// Remove deletes name.
func (OS) Remove(name string) error {
	return Classify("remove", name, os.Remove(name))
}

// Join joins elements with the host separator.
func (OS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// osAtomicFile classifies the errors of a
// safefile.File.
type osAtomicFile struct {
	*safefile.File
	name string
}

func (f *osAtomicFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)

	return n, Classify("write", f.name, err)
}

func (f *osAtomicFile) Commit() error {
	return Classify("commit", f.name, f.File.Commit())
}

func (f *osAtomicFile) Close() error {
	return Classify("close", f.name, f.File.Close())
}
