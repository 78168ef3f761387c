// Command backup_dir copies every top-level file of a
// source directory into a backup directory, locally or
// on an SFTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/byte4ever/secure_backup/config"
	"github.com/byte4ever/secure_backup/exitcode"
	"github.com/byte4ever/secure_backup/fsys/sftpfs"
	"github.com/byte4ever/secure_backup/logging"
	"github.com/byte4ever/secure_backup/mirror"
	"github.com/byte4ever/secure_backup/notice"
)

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
	const errCtx = "running backup_dir"

	def := config.Default()
	fset := flag.NewFlagSet("backup_dir", flag.ContinueOnError)
	fset.SetOutput(stderr)

	configPath := fset.String(
		"config", "",
		"YAML configuration file",
	)
	src := fset.String(
		"src", def.Backup.Source,
		"source directory",
	)
	dst := fset.String(
		"dst", def.Backup.Dest,
		"destination directory, created if missing",
	)
	onError := fset.String(
		"on_error", def.Backup.OnError,
		"continue or stop after a failed entry",
	)
	directories := fset.String(
		"directories", def.Backup.Directories,
		"skip or fail on subdirectory entries",
	)
	verify := fset.Bool(
		"verify", def.Backup.Verify,
		"re-read every copy and compare digests",
	)
	noLock := fset.Bool(
		"no_lock", false,
		"do not lock the destination",
	)
	breakLock := fset.Bool(
		"break_lock", false,
		"remove a lock left by a killed run before locking",
	)
	chunkSize := fset.Int(
		"chunk_size", def.Backup.ChunkSize,
		"copy buffer size in bytes",
	)
	message := fset.String(
		"message", def.Backup.Message,
		"confirmation template; {copied} {skipped} {failed} {bytes} {size} {dest}",
	)
	remoteHost := fset.String(
		"remote_host", "",
		"SFTP server host[:port]; enables the remote destination",
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
	asJSON := fset.Bool(
		"json", false,
		"print the JSON report instead of the message",
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
		case "src":
			cfg.Backup.Source = *src
		case "dst":
			cfg.Backup.Dest = *dst
		case "on_error":
			cfg.Backup.OnError = *onError
		case "directories":
			cfg.Backup.Directories = *directories
		case "verify":
			cfg.Backup.Verify = *verify
		case "no_lock":
			cfg.Backup.Lock = !*noLock
		case "break_lock":
			cfg.Backup.BreakLock = *breakLock
		case "chunk_size":
			cfg.Backup.ChunkSize = *chunkSize
		case "message":
			cfg.Backup.Message = *message
		case "remote_host":
			cfg.Backup.Remote.Host = *remoteHost
		case "remote_user":
			cfg.Backup.Remote.User = *remoteUser
		case "remote_key":
			cfg.Backup.Remote.KeyFile = *remoteKey
		case "known_hosts":
			cfg.Backup.Remote.KnownHosts = *knownHosts
		case "remote_timeout":
			cfg.Backup.Remote.Timeout = *remoteTimeout
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

	mc, err := cfg.Backup.MirrorConfig()
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if cfg.Backup.Remote.Enabled() {
		sc, err := cfg.Backup.Remote.SFTP()
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

		mc.Dest = rfs
	}

	rep, mirrorErr := mirror.Mirror(ctx, mc)

	if rep != nil {
		if err := output(stdout, rep, cfg.Backup.Message, *asJSON, mirrorErr); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	if mirrorErr != nil {
		return fmt.Errorf("%s: %w", errCtx, mirrorErr)
	}

	return nil
}

// output prints the report. The confirmation message is
// only printed for a complete mirror; a partial one
// lists the failed entries instead.
func output(
	w io.Writer,
	rep *mirror.Report,
	message string,
	asJSON bool,
	mirrorErr error,
) error {
	if asJSON {
		return rep.WriteJSON(w)
	}

	if mirrorErr == nil {
		if _, err := fmt.Fprintln(w, notice.Render(message, rep.Vars())); err != nil {
			return fmt.Errorf("writing to stdout: %w", err)
		}

		return nil
	}

	for _, e := range rep.Entries {
		if e.Status != mirror.StatusFailed && e.Status != mirror.StatusNotAttempted {
			continue
		}

		line := fmt.Sprintf("%s %s", e.Status, e.Name)
		if e.Reason != "" {
			line += ": " + e.Reason
		}

		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("writing to stdout: %w", err)
		}
	}

	return nil
}
