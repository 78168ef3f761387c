package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/byte4ever/secure_backup/notice"
)

// ErrNoCommand reports an empty argument vector.
var ErrNoCommand = errors.New("no command")

// Expand renders every element of argv with vars. The
// first element is the program and is expanded too.
func Expand(argv []string, vars map[string]any) []string {
	out := make([]string, len(argv))

	for i, arg := range argv {
		out[i] = notice.Render(arg, vars)
	}

	return out
}

// Run expands argv with vars, executes it and returns
// the combined stdout and stderr output. No shell is
// involved.
func Run(
	ctx context.Context,
	argv []string,
	vars map[string]any,
) (string, error) {
	const errCtx = "running hook"

	if len(argv) == 0 {
		return "", fmt.Errorf("%s: %w", errCtx, ErrNoCommand)
	}

	args := Expand(argv, vars)

	slog.Info(
		"executing hook",
		"cmd", args[0],
		"args", strings.Join(args[1:], " "),
	)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // command is operator configured

	by, err := cmd.CombinedOutput()

	slog.Info("hook output", "result", string(by))

	if err != nil {
		return string(by), fmt.Errorf(
			"%s: %s: %w",
			errCtx, strings.Join(args, " "), err,
		)
	}

	return string(by), nil
}
