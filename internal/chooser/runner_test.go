package chooser

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"
)

func TestExecRunnerCollectsOutputAndEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	stdout, stderr, err := execRunner{}.Run(context.Background(), "sh", []string{"CAPTURE_TITLE=Pick"},
		quietLogger(), "-c", `echo "$CAPTURE_TITLE"; echo oops >&2; exit 4`)

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 4 {
		t.Fatalf("Run = %v, want exit status 4", err)
	}
	if string(stdout) != "Pick\n" || string(stderr) != "oops\n" {
		t.Fatalf("stdout %q stderr %q", stdout, stderr)
	}
}

func TestExecRunnerMissingProgram(t *testing.T) {
	_, _, err := execRunner{}.Run(context.Background(), "no-such-chooser-program", nil, quietLogger())
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("Run = %v, want ErrNotFound", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc...(truncated)" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 3); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}
