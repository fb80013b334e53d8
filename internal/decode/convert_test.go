package decode

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestConvertingOpenerConvertsListedExtensions(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "IMG_0001.HEIC")
	if err := os.WriteFile(src, []byte("heic"), 0o644); err != nil {
		t.Fatal(err)
	}

	var convertedFrom, convertedTo string
	o := &ConvertingOpener{
		Base:    NewOpener(),
		TempDir: dir,
		Convert: func(_ context.Context, in, out string) error {
			convertedFrom, convertedTo = in, out
			return os.WriteFile(out, []byte("png"), 0o644)
		},
	}

	rc, err := o.Open(context.Background(), FileLocator(src))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != "png" {
		t.Fatalf("read %q, want converted bytes", b)
	}
	if convertedFrom != src {
		t.Fatalf("converted %q, want %q", convertedFrom, src)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(convertedTo)); !os.IsNotExist(err) {
		t.Fatalf("temp dir should be removed on Close, stat err = %v", err)
	}
}

func TestConvertingOpenerPassesThroughOtherFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	if err := os.WriteFile(src, []byte("plain"), 0o644); err != nil {
		t.Fatal(err)
	}
	o := &ConvertingOpener{
		Base: NewOpener(),
		Convert: func(context.Context, string, string) error {
			t.Fatal("converter should not run")
			return nil
		},
	}
	rc, err := o.Open(context.Background(), Locator(src))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "plain" {
		t.Fatalf("read %q", b)
	}
}

func TestConvertingOpenerReportsConversionFailure(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("no converter")
	o := &ConvertingOpener{
		Base:    NewOpener(),
		TempDir: dir,
		Convert: func(context.Context, string, string) error { return boom },
	}
	if _, err := o.Open(context.Background(), Locator(filepath.Join(dir, "x.heif"))); !errors.Is(err, boom) {
		t.Fatalf("Open = %v, want conversion error", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp dir left behind: %v", entries)
	}
}
