package chooser

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type writingRunner struct {
	stubRunner
	write bool
}

func (w *writingRunner) Run(ctx context.Context, name string, env []string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	if w.write {
		if err := os.WriteFile(args[len(args)-1], []byte("png"), 0o644); err != nil {
			return nil, nil, err
		}
	}
	return w.stubRunner.Run(ctx, name, env, logger, args...)
}

func TestNewConverterArguments(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "a.heic"), filepath.Join(dir, "a.png")

	tests := []struct {
		tool string
		args []string
	}{
		{"heif-convert", []string{in, out}},
		{"magick", []string{in, out}},
		{"sips", []string{"-s", "format", "png", in, "--out", out}},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			r := &writingRunner{write: true}
			convert, err := NewConverter(tt.tool, quietLogger(), r)
			if err != nil {
				t.Fatalf("NewConverter: %v", err)
			}
			if err := convert(context.Background(), in, out); err != nil {
				t.Fatalf("convert: %v", err)
			}
			if r.name != tt.tool || !reflect.DeepEqual(r.args, tt.args) {
				t.Fatalf("ran %s %v, want %s %v", r.name, r.args, tt.tool, tt.args)
			}
		})
	}
}

func TestNewConverterRejectsUnknownTool(t *testing.T) {
	if _, err := NewConverter("gimp", quietLogger(), nil); err == nil {
		t.Fatal("expected an error for an unknown tool")
	}
}

func TestConverterFailures(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "a.heic"), filepath.Join(dir, "a.png")

	boom := errors.New("exit status 1")
	convert, _ := NewConverter("magick", quietLogger(), &writingRunner{stubRunner: stubRunner{err: boom, stderr: "no decode delegate"}})
	if err := convert(context.Background(), in, out); !errors.Is(err, boom) {
		t.Fatalf("convert = %v, want wrapped runner error", err)
	}

	convert, _ = NewConverter("magick", quietLogger(), &writingRunner{})
	if err := convert(context.Background(), in, out); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("convert = %v, want missing output", err)
	}
}
