package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueClosed = errors.New("queue is shutting down")
	ErrQueueFull   = errors.New("queue is full")
	ErrLoopClosed  = errors.New("loop is closed")
)

// Job is one unit of background work. Run must honour ctx cancellation.
type Job struct {
	ID          uuid.UUID
	Run         func(ctx context.Context)
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// TryEnqueue never blocks; a full buffer yields ErrQueueFull.
	TryEnqueue(job Job) error
	Shutdown(ctx context.Context)
}
