package exitcode

import (
	"context"
	"errors"

	"github.com/byte4ever/secure_backup/config"
	"github.com/byte4ever/secure_backup/mirror"
	"github.com/byte4ever/secure_backup/monitor"
)

const (
	OK       = 0
	Failure  = 1
	Usage    = 2
	Mismatch = 3
	// Interrupted follows the shell convention for a
	// process stopped by SIGINT.
	Interrupted = 130
)

var (
	// ErrUsage indicates a command line problem.
	ErrUsage = errors.New("usage error")

	// ErrMismatch indicates a file whose content does
	// not match its record.
	ErrMismatch = errors.New("integrity mismatch")
)

// Code maps err to an exit status.
func Code(err error) int {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrUsage),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, monitor.ErrInvalid):
		return Usage
	case errors.Is(err, ErrMismatch),
		errors.Is(err, mirror.ErrPartial):
		return Mismatch
	case errors.Is(err, context.Canceled):
		return Interrupted
	default:
		return Failure
	}
}
