package capture

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jivesoftware/ImageCapturer/internal/async"
	"github.com/jivesoftware/ImageCapturer/internal/decode"
)

// worker is a single-shot decode of one accepted result.
type worker struct {
	id            uuid.UUID
	session       *Session
	correlationID int
	locator       decode.Locator
	scratchPath   string
	provider      decode.Provider
	deliver       Delivery
	started       time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	release   sync.Once
}

func newWorker(s *Session, correlationID int, locator decode.Locator, scratchPath string,
	provider decode.Provider, deliver Delivery) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		id:            uuid.New(),
		session:       s,
		correlationID: correlationID,
		locator:       locator,
		scratchPath:   scratchPath,
		provider:      provider,
		deliver:       deliver,
		started:       time.Now(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// run executes on a pool goroutine.
func (w *worker) run(poolCtx context.Context) {
	if w.cancelled.Load() {
		return
	}
	ctx, stop := context.WithCancel(poolCtx)
	defer stop()
	unlink := context.AfterFunc(w.ctx, stop)
	defer unlink()

	out := w.decode(ctx)

	s := w.session
	err := s.loop.Post(func(tok async.Token) { s.finish(tok, w, out) })
	if err != nil {
		s.logger.Warn("outcome dropped", "worker_id", w.id, "error", errors.Join(errNoDelivery, err))
		w.releaseScratch()
	}
}

func (w *worker) decode(ctx context.Context) decode.Outcome {
	attempt := decode.Attempt{Origin: w.locator}
	src := w.locator
	fromScratch := src == ""
	if fromScratch {
		src = decode.Locator(w.scratchPath)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				attempt.Panic = r
			}
		}()
		rc, err := w.session.opener.Open(ctx, src)
		if err != nil {
			attempt.Err = err
			return
		}
		defer rc.Close()
		attempt.Image, attempt.Err = w.provider.ProvideImage(ctx, rc)
	}()

	if fromScratch && fileExists(w.scratchPath) {
		attempt.File = w.scratchPath
	}
	return decode.Classify(attempt)
}

// abort cancels the decode, suppresses delivery and frees the scratch file.
func (w *worker) abort() {
	w.cancelled.Store(true)
	w.cancel()
	w.releaseScratch()
}

func (w *worker) releaseScratch() {
	w.release.Do(func() {
		w.cancel()
		if w.scratchPath == "" {
			return
		}
		_ = w.session.scratch.Delete(w.scratchPath)
	})
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
