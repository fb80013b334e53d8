package server

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jivesoftware/ImageCapturer/constants"
	"github.com/jivesoftware/ImageCapturer/internal/async"
	"github.com/jivesoftware/ImageCapturer/internal/capture"
	"github.com/jivesoftware/ImageCapturer/internal/common"
	"github.com/jivesoftware/ImageCapturer/internal/decode"
	"github.com/jivesoftware/ImageCapturer/internal/repository"
)

const journalTimeout = 5 * time.Second

// CaptureService exposes one capture session to remote callers. Every call
// is marshalled onto the session's loop.
type CaptureService struct {
	loop     *async.Loop
	session  *capture.Session
	sessions repository.SessionRepository
	outcomes repository.OutcomeRepository
	key      string
	logger   *slog.Logger

	mu   sync.Mutex
	last *repository.OutcomeEntry

	seq       uint64
	persistMu sync.Mutex
	persisted uint64

	journal sync.WaitGroup
}

var _ CapturerServer = (*CaptureService)(nil)

// NewCaptureService wires a session to the transport. sessions and outcomes may be nil.
func NewCaptureService(loop *async.Loop, session *capture.Session, key string,
	sessions repository.SessionRepository, outcomes repository.OutcomeRepository, logger *slog.Logger) *CaptureService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureService{
		loop:     loop,
		session:  session,
		sessions: sessions,
		outcomes: outcomes,
		key:      key,
		logger:   logger.With("component", "server", "session_key", key),
	}
}

// Resume restores the persisted session, if any.
func (s *CaptureService) Resume(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	st, ok, err := s.sessions.Load(ctx, s.key)
	if err != nil || !ok {
		return err
	}
	if err := s.loop.Do(ctx, func(tok async.Token) error { return s.session.Restore(tok, st) }); err != nil {
		return err
	}
	s.logger.Info("session resumed", "pending", st.Pending(), "correlation_id", st.CorrelationID)
	return nil
}

// Close waits for outstanding journal writes.
func (s *CaptureService) Close() {
	s.journal.Wait()
}

func (s *CaptureService) Begin(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := intField(in, "correlation_id")
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(stringField(in, "title"))

	var req capture.Request
	err = s.mutate(ctx, func(tok async.Token) error {
		var err error
		req, err = s.session.Begin(tok, id, title)
		return err
	})
	if err != nil {
		s.logger.Warn("begin failed", "correlation_id", id, "error", err)
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"correlation_id": req.CorrelationID,
		"scratch_path":   req.ScratchPath,
		"title":          req.Title,
	})
}

func (s *CaptureService) Deliver(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := intField(in, "correlation_id")
	if err != nil {
		return nil, err
	}
	succeeded := in.GetFields()["succeeded"].GetBoolValue()
	locator := decode.Locator(stringField(in, "locator"))

	var res constants.MatchResult
	err = s.mutate(ctx, func(tok async.Token) error {
		var err error
		res, err = s.session.Match(tok, id, succeeded, locator, s.delivery(id), nil)
		return err
	})
	if err != nil {
		s.logger.Warn("deliver failed", "correlation_id", id, "error", err)
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(map[string]any{"result": string(res)})
}

func (s *CaptureService) CancelPending(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	var abandoned string
	err := s.mutate(ctx, func(tok async.Token) error {
		var err error
		abandoned, err = s.session.CancelPending(tok)
		return err
	})
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(map[string]any{"abandoned_path": abandoned})
}

func (s *CaptureService) CancelDecode(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	err := s.loop.Do(ctx, func(tok async.Token) error { return s.session.CancelActiveDecode(tok) })
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *CaptureService) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	var (
		state    constants.SessionState
		snapshot capture.State
	)
	err := s.loop.Do(ctx, func(tok async.Token) error {
		var err error
		if state, err = s.session.State(tok); err != nil {
			return err
		}
		snapshot, err = s.session.Save(tok)
		return err
	})
	if err != nil {
		return nil, common.ToStatus(err)
	}

	out := map[string]any{
		"state":          string(state),
		"correlation_id": snapshot.CorrelationID,
	}
	if snapshot.ScratchPath != nil {
		out["scratch_path"] = *snapshot.ScratchPath
	}
	if snapshot.Title != nil {
		out["title"] = *snapshot.Title
	}

	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last != nil {
		out["last_outcome"] = map[string]any{
			"kind":           string(last.Kind),
			"correlation_id": last.CorrelationID,
			"origin":         last.Origin,
			"width":          last.Width,
			"height":         last.Height,
			"error":          last.Error,
			"recorded_at":    last.RecordedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return structpb.NewStruct(out)
}

// mutate runs fn on the loop and then persists the resulting session state.
func (s *CaptureService) mutate(ctx context.Context, fn func(tok async.Token) error) error {
	var (
		st  capture.State
		seq uint64
	)
	err := s.loop.Do(ctx, func(tok async.Token) error {
		if err := fn(tok); err != nil {
			return err
		}
		var err error
		st, err = s.session.Save(tok)
		s.seq++
		seq = s.seq
		return err
	})
	if err != nil {
		return err
	}
	s.persist(ctx, seq, st)
	return nil
}

func (s *CaptureService) persist(ctx context.Context, seq uint64, st capture.State) {
	if s.sessions == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if seq <= s.persisted {
		return
	}
	if err := s.sessions.Save(ctx, s.key, st); err != nil {
		s.logger.Error("failed to persist session", "error", err)
		return
	}
	s.persisted = seq
}

// delivery records the outcome for Status and the journal. The scratch
// file is released by the session once this returns.
func (s *CaptureService) delivery(correlationID int) capture.Delivery {
	return func(_ async.Token, out decode.Outcome) {
		entry := repository.NewOutcomeEntry(s.key, correlationID, out, time.Now())
		if s.outcomes != nil {
			s.journal.Add(1)
			go func() {
				defer s.journal.Done()
				ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
				defer cancel()
				if err := s.outcomes.Record(ctx, entry); err != nil {
					s.logger.Error("failed to journal outcome", "correlation_id", correlationID, "error", err)
				}
			}()
		}

		s.mu.Lock()
		s.last = &entry
		s.mu.Unlock()
		s.logger.Info("outcome delivered", "correlation_id", correlationID, "outcome", string(entry.Kind))
	}
}

func intField(in *structpb.Struct, name string) (int, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, common.InvalidArgumentErrorf("%s is required", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) ||
		n.NumberValue < math.MinInt32 || n.NumberValue > math.MaxInt32 {
		return 0, common.InvalidArgumentError(fmt.Sprintf("%s must be a 32-bit integer", name))
	}
	return int(n.NumberValue), nil
}

func stringField(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}
