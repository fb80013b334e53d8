package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jivesoftware/ImageCapturer/constants"
	"github.com/jivesoftware/ImageCapturer/internal/async"
	"github.com/jivesoftware/ImageCapturer/internal/common"
	"github.com/jivesoftware/ImageCapturer/internal/decode"
)

// NoRequest is the correlation id of an idle session.
const NoRequest = -1

// Delivery receives the outcome of an accepted request on the session's loop.
type Delivery func(tok async.Token, out decode.Outcome)

// Request is what the caller hands to the external chooser flow.
type Request struct {
	CorrelationID int
	ScratchPath   string
	Title         string
}

// ScratchStore allocates and removes scratch files.
type ScratchStore interface {
	Allocate() (string, error)
	Delete(path string) error
}

type Options struct {
	Loop     *async.Loop
	Scratch  ScratchStore
	Queue    async.Queue
	Opener   decode.Opener
	Provider decode.Provider
	Title    *string
	Logger   *slog.Logger
}

// Session owns at most one outstanding external request and at most one
// active background decode. All methods must run on the session's loop.
type Session struct {
	loop     *async.Loop
	scratch  ScratchStore
	queue    async.Queue
	opener   decode.Opener
	provider decode.Provider
	logger   *slog.Logger

	title       *string
	pendingID   int
	scratchPath string
	active      *worker
	// superseded decodes still owe their request a delivery
	draining map[*worker]struct{}
}

func NewSession(opts Options) (*Session, error) {
	if opts.Loop == nil || opts.Scratch == nil || opts.Queue == nil {
		return nil, fmt.Errorf("new session: loop, scratch and queue are required")
	}
	if opts.Opener == nil {
		opts.Opener = decode.NewOpener()
	}
	if opts.Provider == nil {
		opts.Provider = decode.DefaultProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		loop:      opts.Loop,
		scratch:   opts.Scratch,
		queue:     opts.Queue,
		opener:    opts.Opener,
		provider:  opts.Provider,
		logger:    opts.Logger.With("component", "capture"),
		title:     cloneString(opts.Title),
		pendingID: NoRequest,
		draining:  make(map[*worker]struct{}),
	}, nil
}

func (s *Session) SetTitle(tok async.Token, title *string) error {
	if err := s.loop.Check(tok); err != nil {
		return err
	}
	s.title = cloneString(title)
	return nil
}

// Begin allocates a scratch file and records correlationID as the pending request.
func (s *Session) Begin(tok async.Token, correlationID int, titleOverride string) (Request, error) {
	if err := s.loop.Check(tok); err != nil {
		return Request{}, err
	}
	if correlationID < 1 {
		return Request{}, common.UsageFault(common.ErrInvalidArgument, "correlation id %d must be positive", correlationID)
	}
	if s.pendingID != NoRequest {
		return Request{}, common.UsageFault(common.ErrAlreadyPending, "request %d is still pending", s.pendingID)
	}

	path, err := s.scratch.Allocate()
	if err != nil {
		return Request{}, err
	}
	s.pendingID = correlationID
	s.scratchPath = path

	req := Request{CorrelationID: correlationID, ScratchPath: path, Title: s.resolveTitle(titleOverride)}
	s.logger.Info("capture requested", "correlation_id", correlationID, "scratch_path", path)
	return req, nil
}

func (s *Session) resolveTitle(override string) string {
	switch {
	case override != "":
		return override
	case s.title != nil:
		return *s.title
	default:
		return constants.DefaultChooserTitle
	}
}

// Match routes an external result to the pending request. A matching
// successful result is handed to a background decode whose outcome reaches
// deliver exactly once, unless the decode is cancelled first. A nil
// provider means the session default.
func (s *Session) Match(tok async.Token, resultID int, succeeded bool, locator decode.Locator,
	deliver Delivery, provider decode.Provider) (constants.MatchResult, error) {
	if err := s.loop.Check(tok); err != nil {
		return "", err
	}
	if resultID != s.pendingID {
		s.logger.Debug("ignoring unrelated result", "result_id", resultID, "pending_id", s.pendingID)
		return constants.MatchIgnored, nil
	}
	if s.scratchPath == "" {
		return "", common.UsageFault(common.ErrNotAwaiting, "result %d arrived with no pending request", resultID)
	}

	if !succeeded {
		path := s.scratchPath
		s.clearPending()
		_ = s.scratch.Delete(path)
		s.logger.Info("capture rejected", "correlation_id", resultID)
		return constants.MatchRejected, nil
	}

	if deliver == nil {
		return "", common.UsageFault(common.ErrInvalidArgument, "delivery func is required")
	}
	if provider == nil {
		provider = s.provider
	}

	w := newWorker(s, resultID, locator, s.scratchPath, provider, deliver)
	err := s.queue.TryEnqueue(async.Job{ID: w.id, Run: w.run, TraceID: strconv.Itoa(resultID)})
	if err != nil {
		s.logger.Error("failed to dispatch decode", "correlation_id", resultID, "error", err)
		return "", common.WrapError(err, "dispatch decode")
	}

	if prev := s.active; prev != nil {
		// the older request still gets its outcome; it just stops being the active decode
		s.logger.Info("active decode superseded", "worker_id", prev.id, "correlation_id", prev.correlationID)
		s.draining[prev] = struct{}{}
	}
	s.active = w
	s.clearPending()
	s.logger.Info("decode dispatched", "correlation_id", resultID, "worker_id", w.id, "locator", string(locator))
	return constants.MatchDispatched, nil
}

// CancelPending forgets the pending request. The scratch file is left on
// disk and its path returned so the caller may remove it.
func (s *Session) CancelPending(tok async.Token) (string, error) {
	if err := s.loop.Check(tok); err != nil {
		return "", err
	}
	abandoned := s.scratchPath
	if s.pendingID != NoRequest {
		s.logger.Info("pending capture cancelled", "correlation_id", s.pendingID, "scratch_path", abandoned)
	}
	s.clearPending()
	return abandoned, nil
}

// CancelActiveDecode stops the active decode, if any. Its outcome is never
// delivered. Superseded decodes keep draining; only Close stops them.
func (s *Session) CancelActiveDecode(tok async.Token) error {
	if err := s.loop.Check(tok); err != nil {
		return err
	}
	w := s.active
	if w == nil {
		return nil
	}
	s.active = nil
	w.abort()
	s.logger.Info("decode cancelled", "worker_id", w.id, "correlation_id", w.correlationID)
	return nil
}

// IsCapturing reports whether an external request is outstanding. A running
// decode does not count; see Decoding.
func (s *Session) IsCapturing(tok async.Token) (bool, error) {
	if err := s.loop.Check(tok); err != nil {
		return false, err
	}
	return s.pendingID != NoRequest, nil
}

// Decoding reports whether any accepted request still awaits its outcome.
func (s *Session) Decoding(tok async.Token) (bool, error) {
	if err := s.loop.Check(tok); err != nil {
		return false, err
	}
	return s.decoding(), nil
}

func (s *Session) decoding() bool {
	return s.active != nil || len(s.draining) > 0
}

// State reports the session's lifecycle position.
func (s *Session) State(tok async.Token) (constants.SessionState, error) {
	if err := s.loop.Check(tok); err != nil {
		return "", err
	}
	pending, decoding := s.pendingID != NoRequest, s.decoding()
	switch {
	case pending && decoding:
		return constants.SessionAwaitingBoth, nil
	case pending:
		return constants.SessionAwaitingResult, nil
	case decoding:
		return constants.SessionAwaitingDecode, nil
	default:
		return constants.SessionIdle, nil
	}
}

// Close tears the session down: every running decode is cancelled and a
// pending scratch file is deleted.
func (s *Session) Close(tok async.Token) error {
	if err := s.CancelActiveDecode(tok); err != nil {
		return err
	}
	for w := range s.draining {
		delete(s.draining, w)
		w.abort()
	}
	path := s.scratchPath
	s.clearPending()
	return s.scratch.Delete(path)
}

// Save captures the serializable part of the session. The active decode is not included.
func (s *Session) Save(tok async.Token) (State, error) {
	if err := s.loop.Check(tok); err != nil {
		return State{}, err
	}
	st := State{Title: cloneString(s.title), CorrelationID: s.pendingID}
	if s.scratchPath != "" {
		path := s.scratchPath
		st.ScratchPath = &path
	}
	return st, nil
}

// Restore loads a saved State into an idle session.
func (s *Session) Restore(tok async.Token, st State) error {
	if err := s.loop.Check(tok); err != nil {
		return err
	}
	st = st.normalize()
	if err := st.Validate(); err != nil {
		return err
	}
	if s.pendingID != NoRequest {
		return common.UsageFault(common.ErrAlreadyPending, "cannot restore over pending request %d", s.pendingID)
	}
	s.title = cloneString(st.Title)
	if st.ScratchPath != nil {
		s.pendingID = st.CorrelationID
		s.scratchPath = *st.ScratchPath
		s.logger.Info("pending capture restored", "correlation_id", s.pendingID, "scratch_path", s.scratchPath)
	}
	return nil
}

func (s *Session) clearPending() {
	s.pendingID = NoRequest
	s.scratchPath = ""
}

// finish runs on the loop once a worker has an outcome.
func (s *Session) finish(tok async.Token, w *worker, out decode.Outcome) {
	if s.active == w {
		s.active = nil
	}
	delete(s.draining, w)
	if w.cancelled.Load() {
		s.logger.Debug("dropping outcome of cancelled decode", "worker_id", w.id)
		return
	}
	defer w.releaseScratch()

	s.logger.Info("decode finished", "worker_id", w.id, "correlation_id", w.correlationID,
		"outcome", string(out.Kind()), "elapsed_ms", time.Since(w.started).Milliseconds())
	w.deliver(tok, out)
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var errNoDelivery = errors.New("loop closed before delivery")
