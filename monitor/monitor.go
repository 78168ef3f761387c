package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/byte4ever/secure_backup/fsys"
	"github.com/byte4ever/secure_backup/integrity/digest"
	"github.com/byte4ever/secure_backup/integrity/sidecar"
	"github.com/byte4ever/secure_backup/mirror"
	"github.com/byte4ever/secure_backup/monitor/hook"
)

// EventKind classifies the state of a watched file
// after a scan.
type EventKind int

const (
	EventUnchanged EventKind = iota
	EventChanged
	EventMissing
	EventRestored
	EventRestoreFailed
	EventNoBaseline
)

// String returns the event name passed to hooks.
func (k EventKind) String() string {
	switch k {
	case EventUnchanged:
		return "unchanged"
	case EventChanged:
		return "changed"
	case EventMissing:
		return "missing"
	case EventRestored:
		return "restored"
	case EventRestoreFailed:
		return "restore_failed"
	default:
		return "no_baseline"
	}
}

// MarshalText renders the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is the outcome of one file in one scan.
// Expected is the recorded digest; Actual is the digest
// found on disk, zero when the file is missing.
type Event struct {
	File     string        `json:"file"`
	Kind     EventKind     `json:"event"`
	Expected digest.Digest `json:"expected"`
	Actual   digest.Digest `json:"actual"`
	Reason   string        `json:"reason,omitempty"`
	Err      error         `json:"-"`
}

// Vars exposes the event to hook argument templates.
func (e Event) Vars() map[string]any {
	vars := map[string]any{
		"file":     e.File,
		"event":    e.Kind.String(),
		"expected": "",
		"actual":   "",
	}

	if !e.Expected.IsZero() {
		vars["expected"] = e.Expected.String()
	}

	if !e.Actual.IsZero() {
		vars["actual"] = e.Actual.String()
	}

	return vars
}

// Baseline records the digest of every watched file
// and copies it into the backup directory, which is
// created if missing. With a remote configured, the
// file and its record are then pushed to RemoteDir.
func Baseline(ctx context.Context, cfg Config) error {
	const errCtx = "taking baseline"

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	fs := cfg.fs()

	if _, err := mirror.EnsureDir(fs, cfg.BackupDir); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if cfg.Remote != nil {
		if _, err := mirror.EnsureDir(cfg.Remote, cfg.RemoteDir); err != nil {
			return fmt.Errorf("%s: remote: %w", errCtx, err)
		}
	}

	for _, file := range cfg.Files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		dg, err := sidecar.Record(cfg.options(file))
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		if _, err := mirror.CopyFile(
			ctx,
			fs, file,
			fs, cfg.backupPath(file),
			cfg.ChunkSize,
			true,
		); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		slog.Info(
			"baseline recorded",
			"file", file,
			"digest", dg.String(),
			"backup", cfg.backupPath(file),
		)

		if cfg.Remote == nil {
			continue
		}

		if err := push(ctx, cfg, file); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return nil
}

// push copies file and its record to the remote
// directory, verifying both copies.
func push(ctx context.Context, cfg Config, file string) error {
	const errCtx = "pushing to remote"

	rec := cfg.options(file).Path()

	for _, pa := range []string{file, rec} {
		dst := cfg.remotePath(pa)

		if _, err := mirror.CopyFile(
			ctx,
			cfg.fs(), pa,
			cfg.Remote, dst,
			cfg.ChunkSize,
			true,
		); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		slog.Debug("pushed", "path", pa, "remote", dst)
	}

	slog.Info(
		"baseline pushed",
		"file", file,
		"remote_dir", cfg.RemoteDir,
	)

	return nil
}

// Scan checks every watched file once. Files that
// could not be checked for reasons other than being
// missing are reported through the returned error; the
// other files are still scanned.
func Scan(ctx context.Context, cfg Config) ([]Event, error) {
	const errCtx = "scanning"

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	events := make([]Event, 0, len(cfg.Files))

	var errs []error

	for _, file := range cfg.Files {
		if err := ctx.Err(); err != nil {
			return events, fmt.Errorf("%s: %w", errCtx, err)
		}

		ev, err := scanFile(ctx, cfg, file)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		events = append(events, ev)

		if ev.Kind != EventUnchanged {
			react(ctx, cfg, ev)
		}
	}

	if len(errs) > 0 {
		return events, fmt.Errorf("%s: %w", errCtx, errors.Join(errs...))
	}

	return events, nil
}

// Watch scans immediately and then every interval until
// ctx is cancelled, passing each event to notify. Scan
// failures are logged and do not stop the watch.
func Watch(
	ctx context.Context,
	cfg Config,
	notify func(Event),
) error {
	const errCtx = "watching"

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"watching files",
		"files", len(cfg.Files),
		"interval", cfg.interval().String(),
		"restore", cfg.Restore,
	)

	ticker := time.NewTicker(cfg.interval())
	defer ticker.Stop()

	for {
		events, err := Scan(ctx, cfg)
		if err != nil && ctx.Err() == nil {
			slog.Error("scan failed", "error", err)
		}

		if notify != nil {
			for _, ev := range events {
				notify(ev)
			}
		}

		select {
		case <-ctx.Done():
			slog.Info("watch stopped")

			return nil
		case <-ticker.C:
		}
	}
}

func scanFile(
	ctx context.Context,
	cfg Config,
	file string,
) (Event, error) {
	ev := Event{File: file}

	res, err := sidecar.Check(cfg.options(file))

	switch {
	case errors.Is(err, fsys.ErrNotFound):
		// The record may still exist; keep its value
		// for the event.
		stored, loadErr := sidecar.Load(cfg.fs(), res.Sidecar)
		if loadErr == nil {
			ev.Expected = stored
		}

		ev.Kind = EventMissing
		ev.Reason = err.Error()
	case err != nil:
		return ev, err
	default:
		ev.Expected = res.Stored
		ev.Actual = res.Current

		switch res.Status {
		case sidecar.StatusMatch:
			ev.Kind = EventUnchanged

			return ev, nil
		case sidecar.StatusMismatch:
			ev.Kind = EventChanged
		default:
			ev.Kind = EventNoBaseline

			return ev, nil
		}
	}

	slog.Warn(
		"file changed or missing",
		"file", file,
		"event", ev.Kind.String(),
	)

	if !cfg.Restore || ev.Expected.IsZero() {
		return ev, nil
	}

	return restore(ctx, cfg, ev), nil
}

// restore copies the backup of ev.File over it and
// checks the result against the record.
func restore(ctx context.Context, cfg Config, ev Event) Event {
	fs := cfg.fs()
	backup := cfg.backupPath(ev.File)

	cr, err := mirror.CopyFile(
		ctx,
		fs, backup,
		fs, ev.File,
		cfg.ChunkSize,
		true,
	)
	if err != nil {
		return restoreFailed(ev, err)
	}

	ev.Actual = cr.Digest

	if cr.Digest != ev.Expected {
		return restoreFailed(ev, fmt.Errorf(
			"backup %s has digest %s, want %s",
			backup, cr.Digest, ev.Expected,
		))
	}

	slog.Info(
		"restored from backup",
		"file", ev.File,
		"backup", backup,
	)

	ev.Kind = EventRestored
	ev.Reason = ""

	return ev
}

func restoreFailed(ev Event, err error) Event {
	slog.Error(
		"restore failed",
		"file", ev.File,
		"error", err,
	)

	ev.Kind = EventRestoreFailed
	ev.Err = err
	ev.Reason = err.Error()

	return ev
}

// react runs the configured hook for ev. A hook failure
// is logged only.
func react(ctx context.Context, cfg Config, ev Event) {
	if len(cfg.OnChange) == 0 {
		return
	}

	if _, err := hook.Run(ctx, cfg.OnChange, ev.Vars()); err != nil {
		slog.Error(
			"change hook failed",
			"file", ev.File,
			"error", err,
		)
	}
}
