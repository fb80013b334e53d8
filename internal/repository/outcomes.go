package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/jivesoftware/ImageCapturer/constants"
	"github.com/jivesoftware/ImageCapturer/internal/decode"
)

// OutcomeEntry is one delivered decode outcome.
type OutcomeEntry struct {
	ID            uuid.UUID
	SessionKey    string
	CorrelationID int
	Kind          constants.OutcomeKind
	Origin        string
	Width         int
	Height        int
	Error         string
	RecordedAt    time.Time
}

// NewOutcomeEntry flattens out for the journal.
func NewOutcomeEntry(sessionKey string, correlationID int, out decode.Outcome, at time.Time) OutcomeEntry {
	e := OutcomeEntry{
		ID:            uuid.New(),
		SessionKey:    sessionKey,
		CorrelationID: correlationID,
		Kind:          out.Kind(),
		RecordedAt:    at,
	}
	switch o := out.(type) {
	case decode.Success:
		e.Origin = string(o.Origin)
		if o.Origin == "" {
			e.Origin = o.File
		}
		if o.Image != nil {
			b := o.Image.Bounds()
			e.Width, e.Height = b.Dx(), b.Dy()
		}
	case decode.IOFailure:
		if o.Err != nil {
			e.Error = o.Err.Error()
		}
	case decode.MemoryFailure:
		if c := o.Cause(); c != nil {
			e.Error = c.Error()
		}
	}
	return e
}

type OutcomeRepository interface {
	Record(ctx context.Context, e OutcomeEntry) error
	// List returns entries recorded in [from, to]; a zero bound is open.
	List(ctx context.Context, from, to time.Time) ([]OutcomeEntry, error)
}

type outcomeRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewOutcomeRepository(db *DB, logger *slog.Logger) OutcomeRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &outcomeRepo{db: db, logger: logger}
}

func (r *outcomeRepo) Record(ctx context.Context, e OutcomeEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	q, args := r.db.builder().Insert(outcomesTable).
		Columns("id", "session_key", "correlation_id", "kind", "origin", "width", "height", "error", "recorded_at").
		Values(e.ID.String(), e.SessionKey, e.CorrelationID, string(e.Kind), e.Origin, e.Width, e.Height, e.Error, e.RecordedAt.UnixNano()).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to record outcome", "correlation_id", e.CorrelationID, "error", err)
		return err
	}
	return nil
}

func (r *outcomeRepo) List(ctx context.Context, from, to time.Time) ([]OutcomeEntry, error) {
	b := r.db.builder()
	t := b.Table(outcomesTable)
	sel := b.Select(
		t.C("id"), t.C("session_key"), t.C("correlation_id"), t.C("kind"), t.C("origin"),
		t.C("width"), t.C("height"), t.C("error"), t.C("recorded_at"),
	).From(t)

	var preds []*entsql.Predicate
	if !from.IsZero() {
		preds = append(preds, entsql.GTE(t.C("recorded_at"), from.UnixNano()))
	}
	if !to.IsZero() {
		preds = append(preds, entsql.LTE(t.C("recorded_at"), to.UnixNano()))
	}
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	q, args := sel.OrderBy(entsql.Asc(t.C("recorded_at"))).Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, q, args, rows); err != nil {
		r.logger.Error("failed to list outcomes", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []OutcomeEntry
	for rows.Next() {
		var (
			e                    OutcomeEntry
			id, kind             string
			corr, w, h, recorded int64
		)
		if err := rows.Scan(&id, &e.SessionKey, &corr, &kind, &e.Origin, &w, &h, &e.Error, &recorded); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		k, ok := constants.ParseOutcomeKind(kind)
		if !ok {
			r.logger.Warn("skipping outcome with unknown kind", "id", id, "kind", kind)
			continue
		}
		e.ID, e.Kind = parsed, k
		e.CorrelationID, e.Width, e.Height = int(corr), int(w), int(h)
		e.RecordedAt = time.Unix(0, recorded)
		out = append(out, e)
	}
	return out, rows.Err()
}
