package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// FileMaxSizeMB is the size at which the log file
	// is rotated.
	FileMaxSizeMB = 10

	// FileMaxBackups is the number of rotated log files
	// kept next to the active one.
	FileMaxBackups = 10
)

// ParseLevel maps debug, info, warn and error to a
// level. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level

	if s == "" {
		return slog.LevelInfo, nil
	}

	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}

	return lvl, nil
}

// New creates a logger writing to w. Format is "text"
// (the default) or "json".
func New(w io.Writer, level string, format string) (*slog.Logger, error) {
	const errCtx = "building logger"

	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	opts := &slog.HandlerOptions{
		AddSource: false,
		Level:     lvl,
	}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf(
			"%s: unknown log format %q", errCtx, format,
		)
	}
}

// NewWithFile creates a logger like New. When file is
// set, every record is also appended to file, which is
// rotated at FileMaxSizeMB keeping FileMaxBackups old
// copies. The returned closer releases the file and
// must be called once the logger is no longer used.
func NewWithFile(
	w io.Writer,
	level string,
	format string,
	file string,
) (*slog.Logger, io.Closer, error) {
	const errCtx = "building file logger"

	if file == "" {
		logger, err := New(w, level, format)
		if err != nil {
			return nil, nil, err
		}

		return logger, nopCloser{}, nil
	}

	rot := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    FileMaxSizeMB,
		MaxBackups: FileMaxBackups,
	}

	logger, err := New(io.MultiWriter(w, rot), level, format)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return logger, rot, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
