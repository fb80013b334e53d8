package chooser

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jivesoftware/ImageCapturer/internal/capture"
	"github.com/jivesoftware/ImageCapturer/internal/decode"
)

// Environment passed to the chooser command.
const (
	EnvOutput        = "CAPTURE_OUTPUT"
	EnvCorrelationID = "CAPTURE_CORRELATION_ID"
	EnvTitle         = "CAPTURE_TITLE"
)

var ErrNoCommand = errors.New("no chooser command configured")

// Result is what the external chooser reported.
type Result struct {
	CorrelationID int
	Succeeded     bool
	// Locator is empty when the chooser wrote into the scratch file.
	Locator decode.Locator
	Stderr  string
}

// Launcher runs an external chooser program for a capture request.
type Launcher struct {
	name   string
	args   []string
	runner Runner
	logger *slog.Logger
}

type Option func(*Launcher)

func WithRunner(r Runner) Option {
	return func(l *Launcher) {
		if r != nil {
			l.runner = r
		}
	}
}

// NewLauncher splits command on whitespace into program and arguments.
func NewLauncher(command string, logger *slog.Logger, opts ...Option) (*Launcher, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, ErrNoCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Launcher{name: fields[0], args: fields[1:], runner: execRunner{}, logger: logger.With("component", "chooser")}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Run blocks until the chooser exits. A non-zero exit is a cancelled
// request, not an error.
func (l *Launcher) Run(ctx context.Context, req capture.Request) (Result, error) {
	env := []string{
		EnvOutput + "=" + req.ScratchPath,
		EnvCorrelationID + "=" + strconv.Itoa(req.CorrelationID),
		EnvTitle + "=" + req.Title,
	}
	stdout, stderr, err := l.runner.Run(ctx, l.name, env, l.logger, l.args...)
	res := Result{CorrelationID: req.CorrelationID, Stderr: string(stderr)}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Succeeded = true
		res.Locator = firstLine(stdout)
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		l.logger.Info("chooser cancelled", "correlation_id", req.CorrelationID, "exit_code", exitErr.ExitCode())
	default:
		return Result{}, fmt.Errorf("run chooser %s: %w", l.name, err)
	}
	return res, nil
}

func firstLine(b []byte) decode.Locator {
	sc := bufio.NewScanner(bytes.NewReader(b))
	if sc.Scan() {
		return decode.Locator(strings.TrimSpace(sc.Text()))
	}
	return ""
}
