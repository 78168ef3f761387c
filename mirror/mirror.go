package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/byte4ever/secure_backup/fsys"
)

// LockSuffix is appended to the destination path to
// name the lock file of a locked mirror run. The lock
// lives next to the destination so that it never
// collides with a mirrored entry.
const LockSuffix = ".lock"

var (
	// ErrLocked reports a destination already held by
	// another mirror run.
	ErrLocked = errors.New("destination is locked")

	// ErrNotDir reports a destination path that exists
	// but is not a directory.
	ErrNotDir = errors.New("not a directory")

	// ErrDirectoryEntry reports a subdirectory entry
	// under the DirectoriesFail policy.
	ErrDirectoryEntry = errors.New("entry is a directory")

	// ErrPartial reports a run in which at least one
	// entry failed.
	ErrPartial = errors.New("mirror incomplete")
)

// OnError selects what happens after an entry fails.
type OnError int

const (
	// ContinueOnError attempts every entry and reports
	// all failures at the end.
	ContinueOnError OnError = iota
	// StopOnError aborts at the first failure; later
	// entries are reported as not attempted.
	StopOnError
)

// ParseOnError maps "continue" and "stop" to a policy.
// The empty string is ContinueOnError.
func ParseOnError(s string) (OnError, error) {
	switch s {
	case "", "continue":
		return ContinueOnError, nil
	case "stop":
		return StopOnError, nil
	default:
		return ContinueOnError, fmt.Errorf(
			"unknown error policy %q", s,
		)
	}
}

// Directories selects how subdirectory entries are
// treated. They are never recursed into.
type Directories int

const (
	// DirectoriesSkip logs a warning and skips the
	// entry.
	DirectoriesSkip Directories = iota
	// DirectoriesFail records the entry as failed.
	DirectoriesFail
)

// ParseDirectories maps "skip" and "fail" to a policy.
// The empty string is DirectoriesSkip.
func ParseDirectories(s string) (Directories, error) {
	switch s {
	case "", "skip":
		return DirectoriesSkip, nil
	case "fail":
		return DirectoriesFail, nil
	default:
		return DirectoriesSkip, fmt.Errorf(
			"unknown directory policy %q", s,
		)
	}
}

// Config holds all settings for a mirror run.
type Config struct {
	// Source is the filesystem holding SourceDir. Nil
	// means the local filesystem.
	Source fsys.FS

	// Dest is the filesystem holding DestDir. Nil
	// means the local filesystem.
	Dest fsys.FS

	// SourceDir is the directory whose top-level
	// entries are copied.
	SourceDir string

	// DestDir receives the copies. It is created if
	// missing; its parent must exist.
	DestDir string

	// OnError is the failure policy.
	OnError OnError

	// Directories is the subdirectory policy.
	Directories Directories

	// ChunkSize is the copy buffer size.
	ChunkSize int

	// Verify re-reads every copy and compares digests.
	Verify bool

	// Lock holds LockPath(DestDir) during the run so
	// that concurrent mirrors to it are refused.
	Lock bool

	// BreakLock removes a lock left behind by a run
	// that was killed before it could release it.
	BreakLock bool
}

// Mirror copies every top-level entry of cfg.SourceDir
// into cfg.DestDir. The report is returned even when
// err is non-nil, unless the destination could not be
// prepared or the source could not be listed.
func Mirror(ctx context.Context, cfg Config) (*Report, error) {
	const errCtx = "mirroring directory"

	src := cfg.Source
	if src == nil {
		src = fsys.OS{}
	}

	dst := cfg.Dest
	if dst == nil {
		dst = fsys.OS{}
	}

	rep := &Report{Source: cfg.SourceDir, Dest: cfg.DestDir}

	created, err := EnsureDir(dst, cfg.DestDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	rep.Created = created

	if cfg.Lock {
		unlock, err := acquireLock(dst, cfg.DestDir, cfg.BreakLock)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		defer unlock()
	}

	entries, err := src.ReadDir(cfg.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"mirroring",
		"source", cfg.SourceDir,
		"dest", cfg.DestDir,
		"entries", len(entries),
	)

	var (
		errs      []error
		cancelErr error
	)

	for idx, entry := range entries {
		if cancelErr = ctx.Err(); cancelErr != nil {
			rep.markNotAttempted(entries[idx:])

			break
		}

		res, entryErr := mirrorEntry(ctx, src, dst, cfg, entry)
		rep.add(res)

		if entryErr == nil {
			continue
		}

		errs = append(errs, entryErr)

		if cfg.OnError == StopOnError {
			rep.markNotAttempted(entries[idx+1:])

			break
		}
	}

	slog.Info(
		"mirror finished",
		"copied", rep.Copied,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
		"not_attempted", rep.NotAttempted,
		"size", humanize.IBytes(uint64(rep.Bytes)), //nolint:gosec // sizes are non-negative
	)

	switch {
	case len(errs) > 0:
		return rep, fmt.Errorf(
			"%s: %w: %d of %d entries failed, %d not attempted: %w",
			errCtx, ErrPartial,
			rep.Failed, len(entries), rep.NotAttempted,
			errors.Join(append(errs, cancelErr)...),
		)
	case cancelErr != nil:
		return rep, fmt.Errorf(
			"%s: interrupted, %d of %d entries not attempted: %w",
			errCtx, rep.NotAttempted, len(entries), cancelErr,
		)
	default:
		return rep, nil
	}
}

// mirrorEntry handles one listed entry and returns its
// outcome.
func mirrorEntry(
	ctx context.Context,
	src fsys.FS,
	dst fsys.FS,
	cfg Config,
	entry fsys.Entry,
) (EntryResult, error) {
	res := EntryResult{Name: entry.Name, Kind: entry.Kind}
	srcPath := src.Join(cfg.SourceDir, entry.Name)

	kind := entry.Kind
	if kind == fsys.KindSymlink {
		info, err := src.Stat(srcPath)
		if err != nil {
			return res.fail(err)
		}

		kind = fsys.KindFromMode(info.Mode())
	}

	switch kind {
	case fsys.KindFile:
	case fsys.KindDir:
		if cfg.Directories == DirectoriesFail {
			return res.fail(fmt.Errorf(
				"%s: %w", srcPath, ErrDirectoryEntry,
			))
		}

		slog.Warn(
			"skipping directory entry",
			"path", srcPath,
		)

		return res.skip("directory"), nil
	default:
		slog.Warn(
			"skipping entry without file content",
			"path", srcPath,
			"kind", entry.Kind.String(),
		)

		return res.skip("not a regular file"), nil
	}

	cr, err := CopyFile(
		ctx,
		src, srcPath,
		dst, dst.Join(cfg.DestDir, entry.Name),
		cfg.ChunkSize,
		cfg.Verify,
	)
	if err != nil {
		return res.fail(err)
	}

	slog.Debug(
		"copied",
		"name", entry.Name,
		"bytes", cr.Bytes,
		"digest", cr.Digest.String(),
	)

	res.Status = StatusCopied
	res.Bytes = cr.Bytes
	res.Digest = cr.Digest.String()

	return res, nil
}

// EnsureDir creates dir (one level) unless it already
// exists as a directory. It reports whether it created
// the directory.
func EnsureDir(fs fsys.FS, dir string) (bool, error) {
	const errCtx = "preparing destination"

	info, err := fs.Stat(dir)

	switch {
	case err == nil:
		if !info.IsDir() {
			return false, fmt.Errorf(
				"%s: %s: %w", errCtx, dir, ErrNotDir,
			)
		}

		return false, nil
	case !errors.Is(err, fsys.ErrNotFound):
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	err = fs.Mkdir(dir, 0o755)
	if err == nil {
		slog.Info("created destination", "dir", dir)

		return true, nil
	}

	// Someone else created it in between; fine as long
	// as it is a directory.
	if errors.Is(err, fsys.ErrExist) {
		info, statErr := fs.Stat(dir)
		if statErr == nil && info.IsDir() {
			return false, nil
		}
	}

	return false, fmt.Errorf("%s: %w", errCtx, err)
}

// LockPath returns the lock file guarding dir.
func LockPath(fs fsys.FS, dir string) string {
	return fs.Join(dir) + LockSuffix
}

// acquireLock creates the lock file of dir, recording
// the owner pid, host and start time, and returns its
// release function. With breakLock an existing lock is
// removed first.
func acquireLock(
	fs fsys.FS,
	dir string,
	breakLock bool,
) (func(), error) {
	const errCtx = "locking destination"

	pa := LockPath(fs, dir)

	if breakLock {
		err := fs.Remove(pa)

		switch {
		case err == nil:
			slog.Warn("broke stale lock", "path", pa)
		case !errors.Is(err, fsys.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	wc, err := fs.CreateExclusive(pa)
	if err != nil {
		if errors.Is(err, fsys.ErrExist) {
			return nil, fmt.Errorf(
				"%s: %s: %w", errCtx, pa, ErrLocked,
			)
		}

		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	_, werr := io.WriteString(wc, lockBody())

	if err := errors.Join(werr, wc.Close()); err != nil {
		_ = fs.Remove(pa)

		return nil, fmt.Errorf(
			"%s: %w", errCtx, fsys.Classify("write", pa, err),
		)
	}

	return func() {
		if err := fs.Remove(pa); err != nil {
			slog.Error(
				"failed to release lock",
				"path", pa,
				"error", err,
			)
		}
	}, nil
}

func lockBody() string {
	host, _ := os.Hostname() //nolint:errcheck // informational only

	return "pid=" + strconv.Itoa(os.Getpid()) + "\n" +
		"host=" + host + "\n" +
		"time=" + time.Now().UTC().Format(time.RFC3339Nano) + "\n"
}
