package chooser

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// stderrLogLimit caps how much of a failing program's stderr ends up in the log.
const stderrLogLimit = 8 << 10

// Runner starts an external program and collects its output. The launcher
// and the HEIC converters go through it so tests can replace the process.
type Runner interface {
	Run(ctx context.Context, name string, env []string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

// execRunner runs real processes. env is added on top of the parent environment.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, env []string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	logger = logger.With("program", name)
	logger.Debug("starting external program", "args", args)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		logger.Debug("external program finished", "elapsed_ms", elapsed, "stdout_bytes", stdout.Len())
	case errors.As(err, &exitErr):
		// a non-zero exit is how a chooser reports that the user backed out
		logger.Info("external program exited non-zero", "elapsed_ms", elapsed,
			"exit_code", exitErr.ExitCode(), "stderr", truncate(stderr.String(), stderrLogLimit))
	default:
		logger.Warn("external program could not run", "elapsed_ms", elapsed, "error", err)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
