package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/jivesoftware/ImageCapturer/internal/capture"
)

// SessionRepository persists capture session state between caller lifetimes.
type SessionRepository interface {
	Save(ctx context.Context, key string, st capture.State) error
	Load(ctx context.Context, key string) (capture.State, bool, error)
	Delete(ctx context.Context, key string) error
}

type sessionRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewSessionRepository(db *DB, logger *slog.Logger) SessionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionRepo{db: db, logger: logger}
}

func (r *sessionRepo) Save(ctx context.Context, key string, st capture.State) error {
	parcel, err := st.MarshalBinary()
	if err != nil {
		return err
	}
	q, args := r.db.builder().Insert(sessionsTable).
		Columns("session_key", "state", "updated_at").
		Values(key, parcel, time.Now().UnixNano()).
		OnConflict(entsql.ConflictColumns("session_key"), entsql.ResolveWithNewValues()).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to save session", "session_key", key, "error", err)
		return err
	}
	r.logger.Debug("saved session", "session_key", key, "pending", st.Pending())
	return nil
}

// Load returns false when nothing is stored under key.
func (r *sessionRepo) Load(ctx context.Context, key string) (capture.State, bool, error) {
	b := r.db.builder()
	t := b.Table(sessionsTable)
	q, args := b.Select(t.C("state")).From(t).Where(entsql.EQ(t.C("session_key"), key)).Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, q, args, rows); err != nil {
		r.logger.Error("failed to load session", "session_key", key, "error", err)
		return capture.State{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return capture.State{}, false, rows.Err()
	}
	var parcel []byte
	if err := rows.Scan(&parcel); err != nil {
		return capture.State{}, false, err
	}
	var st capture.State
	if err := st.UnmarshalBinary(parcel); err != nil {
		r.logger.Warn("stored session is unreadable", "session_key", key, "error", err)
		return capture.State{}, false, err
	}
	return st, true, nil
}

func (r *sessionRepo) Delete(ctx context.Context, key string) error {
	q, args := r.db.builder().Delete(sessionsTable).Where(entsql.EQ("session_key", key)).Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to delete session", "session_key", key, "error", err)
		return err
	}
	return nil
}
