package scratch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jivesoftware/ImageCapturer/internal/common"
)

func TestWaitWrittenReturnsOnceFileSettles(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	path, err := m.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.WaitWritten(ctx, path, 20*time.Millisecond) }()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("jpeg bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitWritten: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WaitWritten did not return")
	}
}

func TestWaitWrittenExistingFile(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	path, _ := m.Allocate()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.WaitWritten(ctx, path, time.Millisecond); err != nil {
		t.Fatalf("WaitWritten: %v", err)
	}
}

func TestWaitWrittenHonoursContext(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	path, _ := m.Allocate()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.WaitWritten(ctx, path, time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitWritten = %v, want deadline exceeded", err)
	}
}

func TestWaitWrittenRejectsForeignPath(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	err := m.WaitWritten(context.Background(), filepath.Join(t.TempDir(), "capture-x.jpg"), time.Millisecond)
	if !errors.Is(err, common.ErrInvalidArgument) || !common.IsUsageFault(err) {
		t.Fatalf("WaitWritten = %v, want usage fault", err)
	}
}
