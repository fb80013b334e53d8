package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jivesoftware/ImageCapturer/internal/async"
	"github.com/jivesoftware/ImageCapturer/internal/capture"
	"github.com/jivesoftware/ImageCapturer/internal/chooser"
	"github.com/jivesoftware/ImageCapturer/internal/common"
	"github.com/jivesoftware/ImageCapturer/internal/decode"
	"github.com/jivesoftware/ImageCapturer/internal/repository"
	"github.com/jivesoftware/ImageCapturer/internal/scratch"
)

// Runtime is the wiring shared by the CLI and the daemon.
type Runtime struct {
	Config   *common.Config
	Logger   *slog.Logger
	DB       *repository.DB
	Sessions repository.SessionRepository
	Outcomes repository.OutcomeRepository
	Scratch  *scratch.Manager
	Loop     *async.Loop
	Pool     *async.Pool
	Viewport *decode.Viewport
	Session  *capture.Session

	cancel   context.CancelFunc
	loopDone chan struct{}
}

// Start opens the store, starts the loop and the decode pool, and builds the session.
func Start(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := repository.Open(ctx, repository.Config{DSN: cfg.Database.DSN, DialTimeout: cfg.Database.DialTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Sessions: repository.NewSessionRepository(db, logger),
		Outcomes: repository.NewOutcomeRepository(db, logger),
		Scratch:  scratch.NewManager(cfg.Capture.ScratchDir, logger),
		Loop:     async.NewLoop(logger),
		Pool: async.NewPool(logger,
			async.WithWorkers(cfg.Decode.Workers),
			async.WithQueueSize(cfg.Decode.QueueSize),
			async.WithProcessTimeout(cfg.Decode.Timeout),
		),
		Viewport: decode.NewViewport(cfg.Decode.ViewportMin),
		loopDone: make(chan struct{}),
	}

	var opener decode.Opener = decode.NewOpener()
	if cfg.Decode.HEICConverter != "" {
		convert, err := chooser.NewConverter(cfg.Decode.HEICConverter, logger, nil)
		if err != nil {
			rt.Pool.Shutdown(ctx)
			db.Close()
			return nil, common.NewAppError(common.CodeConfig, "HEIC_CONVERTER", errors.Join(common.ErrInvalidInput, err))
		}
		opener = &decode.ConvertingOpener{Base: opener, Convert: convert}
	}

	title := cfg.Capture.ChooserTitle
	rt.Session, err = capture.NewSession(capture.Options{
		Loop:    rt.Loop,
		Scratch: rt.Scratch,
		Queue:   rt.Pool,
		Opener:  opener,
		Provider: decode.SubsamplingProvider{
			MinDimension: rt.Viewport.MinDimension,
			MaxPixels:    cfg.Decode.MaxPixels,
			AutoOrient:   cfg.Decode.AutoOrient,
		},
		Title:  &title,
		Logger: logger,
	})
	if err != nil {
		rt.Pool.Shutdown(ctx)
		db.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	go func() {
		defer close(rt.loopDone)
		if err := rt.Loop.Run(loopCtx); err != nil && loopCtx.Err() == nil {
			logger.Error("loop stopped", "error", err)
		}
	}()
	return rt, nil
}

// Do runs fn on the session loop.
func (rt *Runtime) Do(ctx context.Context, fn func(tok async.Token) error) error {
	return rt.Loop.Do(ctx, fn)
}

// Restore loads the persisted session stored under key.
func (rt *Runtime) Restore(ctx context.Context, key string) (capture.State, error) {
	st, ok, err := rt.Sessions.Load(ctx, key)
	if err != nil {
		return capture.State{}, err
	}
	if !ok {
		return capture.State{CorrelationID: capture.NoRequest}, nil
	}
	err = rt.Do(ctx, func(tok async.Token) error { return rt.Session.Restore(tok, st) })
	return st, err
}

// Persist saves the current session state under key.
func (rt *Runtime) Persist(ctx context.Context, key string) error {
	var st capture.State
	if err := rt.Do(ctx, func(tok async.Token) error {
		var err error
		st, err = rt.Session.Save(tok)
		return err
	}); err != nil {
		return err
	}
	return rt.Sessions.Save(ctx, key, st)
}

// Stop drains the decode pool, stops the loop and closes the store.
func (rt *Runtime) Stop(ctx context.Context) {
	rt.Pool.Shutdown(ctx)
	rt.Loop.Close()
	<-rt.loopDone
	rt.cancel()
	rt.DB.Close()
}
