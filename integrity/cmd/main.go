// Command verify_integrity digests one file and either
// records the digest in its sidecar or checks the file
// against the recorded digest.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/secure_backup/config"
	"github.com/byte4ever/secure_backup/exitcode"
	"github.com/byte4ever/secure_backup/integrity/sidecar"
	"github.com/byte4ever/secure_backup/logging"
	"github.com/byte4ever/secure_backup/notice"
)

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(exitcode.Code(err))
	}
}

//nolint:funlen // CLI flag setup is inherently long
func run(
	args []string,
	stdout io.Writer,
	stderr io.Writer,
) error {
	const errCtx = "running verify_integrity"

	def := config.Default()
	fset := flag.NewFlagSet("verify_integrity", flag.ContinueOnError)
	fset.SetOutput(stderr)

	configPath := fset.String(
		"config", "",
		"YAML configuration file",
	)
	file := fset.String(
		"file", "",
		"file to digest",
	)
	sidecarPath := fset.String(
		"sidecar", def.Integrity.Sidecar,
		"record path; may use {path} {dir} {base} {name} {ext}",
	)
	mode := fset.String(
		"mode", def.Integrity.Mode,
		"record or check",
	)
	format := fset.String(
		"format", def.Integrity.Format,
		"record encoding when writing: raw or hex",
	)
	chunkSize := fset.Int(
		"chunk_size", def.Integrity.ChunkSize,
		"read buffer size in bytes",
	)
	message := fset.String(
		"message", def.Integrity.Message,
		"confirmation template; {digest} {file} {sidecar}",
	)
	asJSON := fset.Bool(
		"json", false,
		"print a JSON result instead of the message",
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
			cfg.Integrity.File = *file
		case "sidecar":
			cfg.Integrity.Sidecar = *sidecarPath
		case "mode":
			cfg.Integrity.Mode = *mode
		case "format":
			cfg.Integrity.Format = *format
		case "chunk_size":
			cfg.Integrity.ChunkSize = *chunkSize
		case "message":
			cfg.Integrity.Message = *message
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

	if cfg.Integrity.File == "" {
		return fmt.Errorf(
			"%s: %w: -file must be set", errCtx, exitcode.ErrUsage,
		)
	}

	opts, err := cfg.Integrity.Options()
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if cfg.Integrity.Mode == config.ModeCheck {
		return check(stdout, opts, *asJSON)
	}

	return record(stdout, opts, cfg.Integrity.Message, *asJSON)
}

func record(
	stdout io.Writer,
	opts sidecar.Options,
	message string,
	asJSON bool,
) error {
	const errCtx = "recording"

	dg, err := sidecar.Record(opts)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"digest recorded",
		"file", opts.File,
		"sidecar", opts.Path(),
	)

	if asJSON {
		return writeJSON(stdout, map[string]any{
			"file":    opts.File,
			"sidecar": opts.Path(),
			"digest":  dg,
		})
	}

	line := notice.Render(message, map[string]any{
		"digest":  dg.String(),
		"file":    opts.File,
		"sidecar": opts.Path(),
	})

	if _, err := fmt.Fprintln(stdout, line); err != nil {
		return fmt.Errorf("%s: writing to stdout: %w", errCtx, err)
	}

	return nil
}

func check(
	stdout io.Writer,
	opts sidecar.Options,
	asJSON bool,
) error {
	const errCtx = "checking"

	res, err := sidecar.Check(opts)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if asJSON {
		err = writeJSON(stdout, res)
	} else {
		err = printResult(stdout, res)
	}

	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	switch res.Status {
	case sidecar.StatusMatch:
		return nil
	case sidecar.StatusMismatch:
		return fmt.Errorf(
			"%s: %s: %w", errCtx, res.File, exitcode.ErrMismatch,
		)
	default:
		return fmt.Errorf(
			"%s: %s: %w: no record at %s",
			errCtx, res.File, exitcode.ErrMismatch, res.Sidecar,
		)
	}
}

func printResult(w io.Writer, res sidecar.Result) error {
	var err error

	switch res.Status {
	case sidecar.StatusMatch:
		_, err = fmt.Fprintf(w, "OK %s\n", res.Current)
	case sidecar.StatusMismatch:
		_, err = fmt.Fprintf(
			w, "MISMATCH %s: recorded %s, found %s\n",
			res.File, res.Stored, res.Current,
		)
	default:
		_, err = fmt.Fprintf(
			w, "NO BASELINE %s: found %s\n",
			res.File, res.Current,
		)
	}

	if err != nil {
		return fmt.Errorf("writing to stdout: %w", err)
	}

	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	return nil
}
