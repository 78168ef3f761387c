package monitor

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/byte4ever/secure_backup/fsys"
	"github.com/byte4ever/secure_backup/integrity/sidecar"
)

const (
	// DefaultSidecar keeps each record next to its
	// file.
	DefaultSidecar = "{path}.sha1"

	// DefaultInterval is the delay between two scans.
	DefaultInterval = 5 * time.Second
)

// ErrInvalid reports an unusable monitor configuration.
var ErrInvalid = errors.New("invalid monitor configuration")

// Config holds all settings of a monitor.
type Config struct {
	// FS holds the watched files, their records and
	// the backup directory. Nil means the local
	// filesystem.
	FS fsys.FS

	// Files are the watched paths.
	Files []string

	// BackupDir receives one copy of every watched
	// file, named after its base name.
	BackupDir string

	// Sidecar is the record path pattern. Empty means
	// DefaultSidecar.
	Sidecar string

	// Format is the record encoding.
	Format sidecar.Format

	// ChunkSize is the read buffer size.
	ChunkSize int

	// Interval is the delay between scans. Zero means
	// DefaultInterval.
	Interval time.Duration

	// Restore copies the backup over a changed or
	// missing file.
	Restore bool

	// OnChange is run for every event other than
	// unchanged. Arguments may use {file}, {event},
	// {expected} and {actual}.
	OnChange []string

	// Remote, when set, receives a copy of every
	// watched file and of its record under RemoteDir on
	// each baseline.
	Remote fsys.FS

	// RemoteDir is the directory on Remote holding the
	// pushed copies. It is created if missing.
	RemoteDir string
}

// Validate checks c and reports every problem found.
func (c Config) Validate() error {
	var errs []error

	if len(c.Files) == 0 {
		errs = append(errs, errors.New("no file to watch"))
	}

	if c.BackupDir == "" {
		errs = append(errs, errors.New("backup directory must be set"))
	}

	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("negative interval %s", c.Interval))
	}

	if c.Remote != nil && c.RemoteDir == "" {
		errs = append(errs, errors.New("remote directory must be set"))
	}

	errs = append(errs, c.checkNames()...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}

// checkNames rejects files that would overwrite each
// other's backup, record or remote copy.
func (c Config) checkNames() []error {
	var errs []error

	watched := make(map[string]bool, len(c.Files))
	for _, file := range c.Files {
		watched[c.fs().Join(file)] = true
	}

	backups := make(map[string]string, len(c.Files))
	records := make(map[string]string, len(c.Files))
	remote := make(map[string]string, 2*len(c.Files))

	claim := func(seen map[string]string, key, file, what string) {
		if prev, ok := seen[key]; ok && prev != file {
			errs = append(errs, fmt.Errorf(
				"%s and %s share the %s %s", prev, file, what, key,
			))

			return
		}

		seen[key] = file
	}

	for _, file := range c.Files {
		base := filepath.Base(file)
		rec := c.fs().Join(c.options(file).Path())

		claim(backups, base, file, "backup name")
		claim(records, rec, file, "record")

		if watched[rec] {
			errs = append(errs, fmt.Errorf(
				"record of %s is the watched file %s", file, rec,
			))
		}

		if c.Remote != nil {
			claim(remote, base, file, "remote name")
			claim(remote, filepath.Base(rec), "record of "+file, "remote name")
		}
	}

	return errs
}

func (c Config) fs() fsys.FS {
	if c.FS == nil {
		return fsys.OS{}
	}

	return c.FS
}

func (c Config) sidecarPattern() string {
	if c.Sidecar == "" {
		return DefaultSidecar
	}

	return c.Sidecar
}

func (c Config) interval() time.Duration {
	if c.Interval == 0 {
		return DefaultInterval
	}

	return c.Interval
}

func (c Config) options(file string) sidecar.Options {
	return sidecar.Options{
		FS:        c.fs(),
		File:      file,
		Sidecar:   c.sidecarPattern(),
		ChunkSize: c.ChunkSize,
		Format:    c.Format,
	}
}

func (c Config) backupPath(file string) string {
	return c.fs().Join(c.BackupDir, filepath.Base(file))
}

func (c Config) remotePath(file string) string {
	return c.Remote.Join(c.RemoteDir, filepath.Base(file))
}
