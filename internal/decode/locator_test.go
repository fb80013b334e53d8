package decode

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

type nopSeekCloser struct{ *bytes.Reader }

func (nopSeekCloser) Close() error { return nil }

func TestLocatorScheme(t *testing.T) {
	tests := []struct {
		loc    Locator
		scheme string
	}{
		{"/tmp/a.jpg", ""},
		{"relative/a.jpg", ""},
		{`C://weird`, ""},
		{"file:///tmp/a.jpg", "file"},
		{"Content://media/42", "content"},
	}
	for _, tt := range tests {
		if got := tt.loc.Scheme(); got != tt.scheme {
			t.Errorf("Scheme(%q) = %q, want %q", tt.loc, got, tt.scheme)
		}
	}
}

func TestFileLocatorRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "with space.png")
	loc := FileLocator(path)
	if loc.Scheme() != "file" {
		t.Fatalf("scheme = %q", loc.Scheme())
	}
	got, ok := loc.FilePath()
	if !ok || got != path {
		t.Fatalf("FilePath = %q, %v; want %q", got, ok, path)
	}
}

func TestOpenerFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bin")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	o := NewOpener()

	for _, loc := range []Locator{Locator(path), FileLocator(path)} {
		rc, err := o.Open(context.Background(), loc)
		if err != nil {
			t.Fatalf("Open(%q): %v", loc, err)
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		if string(b) != "hello" {
			t.Fatalf("read %q", b)
		}
	}

	if _, err := o.Open(context.Background(), Locator(filepath.Join(t.TempDir(), "missing"))); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err = %v", err)
	}
	if _, err := o.Open(context.Background(), ""); err == nil {
		t.Fatal("empty locator should fail")
	}
}

func TestOpenerSchemes(t *testing.T) {
	o := NewOpener()
	if _, err := o.Open(context.Background(), "content://media/1"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("unregistered scheme err = %v", err)
	}

	o.Register("CONTENT", func(_ context.Context, loc Locator) (io.ReadSeekCloser, error) {
		return nopSeekCloser{bytes.NewReader([]byte(loc))}, nil
	})
	rc, err := o.Open(context.Background(), "content://media/1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "content://media/1" {
		t.Fatalf("read %q", b)
	}
}
