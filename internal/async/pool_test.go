package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPoolRunsJobs(t *testing.T) {
	p := NewPool(quietLogger(), WithWorkers(3), WithQueueSize(4))

	var n atomic.Int32
	done := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		err := p.Enqueue(context.Background(), Job{
			ID: uuid.New(),
			Run: func(context.Context) {
				n.Add(1)
				done <- struct{}{}
			},
		})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d jobs completed", n.Load())
		}
	}
	p.Shutdown(context.Background())
}

func TestPoolJobContextHasTimeout(t *testing.T) {
	p := NewPool(quietLogger(), WithWorkers(1), WithProcessTimeout(20*time.Millisecond))
	defer p.Shutdown(context.Background())

	got := make(chan error, 1)
	err := p.Enqueue(context.Background(), Job{
		ID: uuid.New(),
		Run: func(ctx context.Context) {
			<-ctx.Done()
			got <- ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case err := <-got:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("ctx err = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job context never expired")
	}
}

func TestPoolEnqueueAfterShutdown(t *testing.T) {
	p := NewPool(quietLogger())
	p.Shutdown(context.Background())
	p.Shutdown(context.Background())

	err := p.Enqueue(context.Background(), Job{ID: uuid.New(), Run: func(context.Context) {}})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enqueue after shutdown = %v, want ErrQueueClosed", err)
	}
}

func TestPoolEnqueueRespectsContextWhenFull(t *testing.T) {
	p := NewPool(quietLogger(), WithWorkers(1), WithQueueSize(1))
	release := make(chan struct{})
	started := make(chan struct{})
	defer func() {
		close(release)
		p.Shutdown(context.Background())
	}()

	block := func(context.Context) { <-release }
	if err := p.Enqueue(context.Background(), Job{ID: uuid.New(), Run: func(ctx context.Context) {
		close(started)
		block(ctx)
	}}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started
	if err := p.Enqueue(context.Background(), Job{ID: uuid.New(), Run: block}); err != nil {
		t.Fatalf("Enqueue into buffer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Enqueue(ctx, Job{ID: uuid.New(), Run: block})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Enqueue on full queue = %v, want deadline exceeded", err)
	}
}

func TestPoolSurvivesPanickingJob(t *testing.T) {
	p := NewPool(quietLogger(), WithWorkers(1))
	defer p.Shutdown(context.Background())

	_ = p.Enqueue(context.Background(), Job{ID: uuid.New(), Run: func(context.Context) { panic("boom") }})
	ok := make(chan struct{})
	_ = p.Enqueue(context.Background(), Job{ID: uuid.New(), Run: func(context.Context) { close(ok) }})
	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestPoolRejectsJobWithoutRun(t *testing.T) {
	p := NewPool(quietLogger())
	defer p.Shutdown(context.Background())
	if err := p.Enqueue(context.Background(), Job{ID: uuid.New()}); err == nil {
		t.Fatal("expected error for job without Run")
	}
}

func TestPoolTryEnqueueNeverBlocks(t *testing.T) {
	p := NewPool(quietLogger(), WithWorkers(1), WithQueueSize(1))
	release := make(chan struct{})
	started := make(chan struct{})

	block := func(context.Context) { <-release }
	if err := p.TryEnqueue(Job{ID: uuid.New(), Run: func(ctx context.Context) {
		close(started)
		block(ctx)
	}}); err != nil {
		t.Fatalf("TryEnqueue: %v", err)
	}
	<-started
	if err := p.TryEnqueue(Job{ID: uuid.New(), Run: block}); err != nil {
		t.Fatalf("TryEnqueue into buffer: %v", err)
	}

	start := time.Now()
	if err := p.TryEnqueue(Job{ID: uuid.New(), Run: block}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("TryEnqueue on full queue = %v, want ErrQueueFull", err)
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Fatalf("TryEnqueue blocked for %v", d)
	}

	close(release)
	p.Shutdown(context.Background())
	if err := p.TryEnqueue(Job{ID: uuid.New(), Run: block}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("TryEnqueue after Shutdown = %v, want ErrQueueClosed", err)
	}
}
