package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jivesoftware/ImageCapturer/internal/common"
)

var errLoopRunning = errors.New("loop is already running")

// Token proves the caller is executing a task on a particular Loop.
// A Token is only valid for the duration of the task it was handed to.
type Token struct {
	loop  *Loop
	epoch uint64
}

// Loop is a single foreground goroutine that serialises all session work.
// Background workers hand results back to it with Post.
type Loop struct {
	logger *slog.Logger

	mu     sync.Mutex
	tasks  []func(Token)
	closed bool
	wake   chan struct{}
	done   chan struct{}
	stop   sync.Once

	running atomic.Bool
	seq     atomic.Uint64
	current atomic.Uint64
}

func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Run executes posted tasks in order until ctx is done or Close is called.
// Tasks posted before shutdown are still executed before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errLoopRunning
	}
	l.logger.Debug("loop started")
	defer l.logger.Debug("loop stopped")

	for {
		l.drain()
		select {
		case <-l.wake:
		case <-l.done:
			l.shutdown()
			return nil
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()
		}
	}
}

func (l *Loop) shutdown() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.stop.Do(func() { close(l.done) })
	l.drain()
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		tasks := l.tasks
		l.tasks = nil
		l.mu.Unlock()
		if len(tasks) == 0 {
			return
		}
		for _, fn := range tasks {
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func(Token)) {
	epoch := l.seq.Add(1)
	l.current.Store(epoch)
	defer l.current.Store(0)
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn(Token{loop: l, epoch: epoch})
}

// Post schedules fn on the loop. It never blocks.
func (l *Loop) Post(fn func(Token)) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the loop and waits for its result.
func (l *Loop) Do(ctx context.Context, fn func(Token) error) error {
	errc := make(chan error, 1)
	err := l.Post(func(tok Token) {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("loop task panicked: %v", r)
			}
			errc <- err
		}()
		// the caller has already been told it failed
		if err = ctx.Err(); err != nil {
			return
		}
		err = fn(tok)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop. Pending tasks still run.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.stop.Do(func() { close(l.done) })
}

// Done is closed once the loop stops accepting work.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Check returns a usage fault unless tok belongs to the task currently running on l.
func (l *Loop) Check(tok Token) error {
	if tok.loop != l || tok.epoch == 0 || tok.epoch != l.current.Load() {
		return common.UsageFault(common.ErrWrongContext, "token is not for the running loop task")
	}
	return nil
}
