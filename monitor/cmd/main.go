// Command integrity_monitor records a baseline for a set
// of files, then checks them periodically and restores
// tampered or deleted files from their backup until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/secure_backup/config"
	"github.com/byte4ever/secure_backup/exitcode"
	"github.com/byte4ever/secure_backup/fsys/sftpfs"
	"github.com/byte4ever/secure_backup/logging"
	"github.com/byte4ever/secure_backup/monitor"
)

// sliceFlag implements flag.Value for repeated string
// flags.
type sliceFlag []string

func (s *sliceFlag) String() string {
	if s == nil {
		return ""
	}

	return strings.Join(*s, ",")
}

// Set appends a value to the slice.
func (s *sliceFlag) Set(val string) error {
	*s = append(*s, val)

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()

	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(exitcode.Code(err))
	}
}

//nolint:funlen,cyclop // CLI flag setup is inherently long
func run(
	ctx context.Context,
	args []string,
	stdout io.Writer,
	stderr io.Writer,
) error {
	const errCtx = "running integrity_monitor"

	def := config.Default()
	fset := flag.NewFlagSet("integrity_monitor", flag.ContinueOnError)
	fset.SetOutput(stderr)

	var files sliceFlag

	configPath := fset.String(
		"config", "",
		"YAML configuration file",
	)
	fset.Var(
		&files,
		"file",
		"file to watch (repeatable)",
	)
	backupDir := fset.String(
		"backup_dir", "",
		"directory holding the backup copies",
	)
	sidecarPath := fset.String(
		"sidecar", def.Monitor.Sidecar,
		"record path template; {path} {dir} {base} {name} {ext}",
	)
	interval := fset.String(
		"interval", def.Monitor.Interval,
		"delay between scans",
	)
	restore := fset.Bool(
		"restore", false,
		"restore changed or missing files from the backup",
	)
	baseline := fset.Bool(
		"baseline", true,
		"record digests and back files up before watching",
	)
	once := fset.Bool(
		"once", false,
		"scan once and exit; status 3 if any file is not intact",
	)
	onChange := fset.String(
		"on_change", "",
		"command run on every change; {file} {event} {expected} {actual}",
	)
	remoteHost := fset.String(
		"remote_host", "",
		"SFTP server host[:port] receiving each baseline",
	)
	remoteUser := fset.String(
		"remote_user", "",
		"SFTP login name",
	)
	remoteKey := fset.String(
		"remote_key", "",
		"private key file",
	)
	knownHosts := fset.String(
		"known_hosts", "",
		"known_hosts file used to verify the server",
	)
	remoteTimeout := fset.String(
		"remote_timeout", "",
		"connect timeout, e.g. 10s",
	)
	remoteDir := fset.String(
		"remote_dir", "",
		"directory on the SFTP server holding the pushed baseline",
	)
	asJSON := fset.Bool(
		"json", false,
		"print events as JSON lines",
	)
	logLevel := fset.String(
		"log_level", def.Log.Level,
		"debug, info, warn or error",
	)
	logFormat := fset.String(
		"log_format", def.Log.Format,
		"text or json",
	)
	logFile := fset.String(
		"log_file", "",
		"also append the log to this file, rotated at 10 MiB",
	)

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("%s: %w: %w", errCtx, exitcode.ErrUsage, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	fset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "file":
			cfg.Monitor.Files = files
		case "backup_dir":
			cfg.Monitor.BackupDir = *backupDir
		case "sidecar":
			cfg.Monitor.Sidecar = *sidecarPath
		case "interval":
			cfg.Monitor.Interval = *interval
		case "restore":
			cfg.Monitor.Restore = *restore
		case "on_change":
			cfg.Monitor.OnChange = strings.Fields(*onChange)
		case "remote_host":
			cfg.Monitor.Remote.Host = *remoteHost
		case "remote_user":
			cfg.Monitor.Remote.User = *remoteUser
		case "remote_key":
			cfg.Monitor.Remote.KeyFile = *remoteKey
		case "known_hosts":
			cfg.Monitor.Remote.KnownHosts = *knownHosts
		case "remote_timeout":
			cfg.Monitor.Remote.Timeout = *remoteTimeout
		case "remote_dir":
			cfg.Monitor.RemoteDir = *remoteDir
		case "log_level":
			cfg.Log.Level = *logLevel
		case "log_format":
			cfg.Log.Format = *logFormat
		case "log_file":
			cfg.Log.File = *logFile
		}
	})

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	logger, logCloser, err := logging.NewWithFile(
		stderr, cfg.Log.Level, cfg.Log.Format, cfg.Log.File,
	)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", errCtx, exitcode.ErrUsage, err)
	}

	defer func() {
		_ = logCloser.Close() //nolint:errcheck // nothing left to log to
	}()

	slog.SetDefault(logger)

	mc, err := cfg.Monitor.MonitorConfig()
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if *baseline && cfg.Monitor.Remote.Enabled() {
		sc, err := cfg.Monitor.Remote.SFTP()
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		rfs, err := sftpfs.Dial(sc)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		defer func() {
			if err := rfs.Close(); err != nil {
				slog.Error("closing sftp session", "error", err)
			}
		}()

		mc.Remote = rfs
	}

	if err := mc.Validate(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if *baseline {
		if err := monitor.Baseline(ctx, mc); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	pr := &printer{w: stdout, asJSON: *asJSON}

	if *once {
		return scanOnce(ctx, mc, pr)
	}

	if err := monitor.Watch(ctx, mc, pr.print); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return pr.err
}

func scanOnce(
	ctx context.Context,
	mc monitor.Config,
	pr *printer,
) error {
	const errCtx = "scanning once"

	events, err := monitor.Scan(ctx, mc)

	intact := true

	for _, ev := range events {
		pr.printAll(ev)

		if ev.Kind != monitor.EventUnchanged && ev.Kind != monitor.EventRestored {
			intact = false
		}
	}

	switch {
	case err != nil:
		return fmt.Errorf("%s: %w", errCtx, err)
	case pr.err != nil:
		return fmt.Errorf("%s: %w", errCtx, pr.err)
	case !intact:
		return fmt.Errorf("%s: %w", errCtx, exitcode.ErrMismatch)
	default:
		return nil
	}
}

// printer writes events to stdout. Unchanged files are
// only printed by printAll. The first write error is
// kept and reported when the watch ends.
type printer struct {
	w      io.Writer
	asJSON bool
	err    error
}

func (p *printer) print(ev monitor.Event) {
	if ev.Kind == monitor.EventUnchanged {
		return
	}

	p.printAll(ev)
}

func (p *printer) printAll(ev monitor.Event) {
	if p.err != nil {
		return
	}

	var err error

	if p.asJSON {
		err = json.NewEncoder(p.w).Encode(ev)
	} else {
		line := fmt.Sprintf("%s %s", ev.Kind, ev.File)
		if ev.Reason != "" {
			line += ": " + ev.Reason
		}

		_, err = fmt.Fprintln(p.w, line)
	}

	if err != nil {
		p.err = fmt.Errorf("writing to stdout: %w", err)
	}
}
