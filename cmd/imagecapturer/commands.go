package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/disintegration/imaging"

	"github.com/jivesoftware/ImageCapturer/constants"
	"github.com/jivesoftware/ImageCapturer/internal/app"
	"github.com/jivesoftware/ImageCapturer/internal/async"
	"github.com/jivesoftware/ImageCapturer/internal/capture"
	"github.com/jivesoftware/ImageCapturer/internal/chooser"
	"github.com/jivesoftware/ImageCapturer/internal/decode"
	"github.com/jivesoftware/ImageCapturer/internal/export"
	"github.com/jivesoftware/ImageCapturer/internal/repository"
)

const defaultSessionKey = "default"

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func runCapture(ctx context.Context, rt *app.Runtime, args []string) error {
	fs := newFlags("capture")
	var (
		key      = fs.String("session", defaultSessionKey, "persisted session key")
		id       = fs.Int("id", 1, "correlation id for the request")
		title    = fs.String("title", "", "chooser title override")
		from     = fs.String("from", "", "use this image instead of running the chooser")
		out      = fs.String("out", "", "save the decoded image to this path")
		viewport = fs.String("viewport", "", "display size WxH used to down-sample the image")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := observeViewport(rt, *viewport); err != nil {
		return err
	}
	if _, err := rt.Restore(ctx, *key); err != nil {
		return err
	}

	var req capture.Request
	err := rt.Do(ctx, func(tok async.Token) error {
		var err error
		req, err = rt.Session.Begin(tok, *id, *title)
		return err
	})
	if err != nil {
		return err
	}
	if err := rt.Persist(ctx, *key); err != nil {
		return err
	}

	res := chooser.Result{CorrelationID: req.CorrelationID, Succeeded: true}
	if *from != "" {
		res.Locator = decode.FileLocator(*from)
	} else {
		launcher, err := chooser.NewLauncher(rt.Config.Capture.ChooserCommand, rt.Logger)
		if errors.Is(err, chooser.ErrNoCommand) {
			return fmt.Errorf("set CHOOSER_CMD or pass --from; request %d stays pending", req.CorrelationID)
		}
		if err != nil {
			return err
		}
		if res, err = launcher.Run(ctx, req); err != nil {
			return err
		}
	}
	return deliver(ctx, rt, *key, res, *out)
}

func runResume(ctx context.Context, rt *app.Runtime, args []string) error {
	fs := newFlags("resume")
	var (
		key      = fs.String("session", defaultSessionKey, "persisted session key")
		from     = fs.String("from", "", "image chosen for the pending request; default is its scratch file")
		failed   = fs.Bool("failed", false, "report that the chooser was cancelled")
		wait     = fs.Bool("wait", false, "wait for another process to write the scratch file first")
		settle   = fs.Duration("settle", 200*time.Millisecond, "quiet period after the last write when --wait is set")
		out      = fs.String("out", "", "save the decoded image to this path")
		viewport = fs.String("viewport", "", "display size WxH used to down-sample the image")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := observeViewport(rt, *viewport); err != nil {
		return err
	}
	st, err := rt.Restore(ctx, *key)
	if err != nil {
		return err
	}
	if !st.Pending() {
		return fmt.Errorf("session %q has no pending request", *key)
	}

	res := chooser.Result{CorrelationID: st.CorrelationID, Succeeded: !*failed}
	switch {
	case *from != "":
		res.Locator = decode.FileLocator(*from)
	case *wait && res.Succeeded:
		fmt.Printf("waiting for %s\n", *st.ScratchPath)
		if err := rt.Scratch.WaitWritten(ctx, *st.ScratchPath, *settle); err != nil {
			return err
		}
	}
	return deliver(ctx, rt, *key, res, *out)
}

// deliver matches res against the session and waits for the decode outcome.
func deliver(ctx context.Context, rt *app.Runtime, key string, res chooser.Result, outPath string) error {
	outc := make(chan decode.Outcome, 1)
	var saveErr error
	onOutcome := func(_ async.Token, out decode.Outcome) {
		// the scratch file is released once this returns
		if s, ok := out.(decode.Success); ok && outPath != "" {
			saveErr = imaging.Save(s.Image, outPath)
		}
		outc <- out
	}

	var match constants.MatchResult
	err := rt.Do(ctx, func(tok async.Token) error {
		var err error
		match, err = rt.Session.Match(tok, res.CorrelationID, res.Succeeded, res.Locator, onOutcome, nil)
		return err
	})
	if err != nil {
		return err
	}
	if err := rt.Persist(ctx, key); err != nil {
		return err
	}

	switch match {
	case constants.MatchIgnored:
		return fmt.Errorf("result %d does not match the pending request", res.CorrelationID)
	case constants.MatchRejected:
		fmt.Printf("request %d cancelled by the chooser\n", res.CorrelationID)
		return nil
	}

	var out decode.Outcome
	select {
	case out = <-outc:
	case <-ctx.Done():
		_ = rt.Do(context.Background(), func(tok async.Token) error { return rt.Session.CancelActiveDecode(tok) })
		return ctx.Err()
	}

	entry := repository.NewOutcomeEntry(key, res.CorrelationID, out, time.Now())
	if err := rt.Outcomes.Record(ctx, entry); err != nil {
		rt.Logger.Warn("failed to journal outcome", "error", err)
	}
	printOutcome(entry)
	if saveErr != nil {
		return fmt.Errorf("save image: %w", saveErr)
	}
	if outPath != "" && entry.Kind == constants.OutcomeImageReady {
		fmt.Printf("saved %s\n", outPath)
	}
	return nil
}

func printOutcome(e repository.OutcomeEntry) {
	switch e.Kind {
	case constants.OutcomeImageReady:
		fmt.Printf("request %d: image %dx%d from %s\n", e.CorrelationID, e.Width, e.Height, e.Origin)
	default:
		fmt.Printf("request %d: %s: %s\n", e.CorrelationID, e.Kind, e.Error)
	}
}

func observeViewport(rt *app.Runtime, v string) error {
	if v == "" {
		return nil
	}
	var w, h int
	if _, err := fmt.Sscanf(v, "%dx%d", &w, &h); err != nil {
		return fmt.Errorf("invalid --viewport %q, want WxH", v)
	}
	rt.Viewport.Observe(w, h)
	return nil
}

func runCancel(ctx context.Context, rt *app.Runtime, args []string) error {
	fs := newFlags("cancel")
	key := fs.String("session", defaultSessionKey, "persisted session key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := rt.Restore(ctx, *key); err != nil {
		return err
	}

	var abandoned string
	err := rt.Do(ctx, func(tok async.Token) error {
		var err error
		abandoned, err = rt.Session.CancelPending(tok)
		return err
	})
	if err != nil {
		return err
	}
	if err := rt.Persist(ctx, *key); err != nil {
		return err
	}
	if abandoned == "" {
		fmt.Println("nothing pending")
		return nil
	}
	if err := rt.Scratch.Delete(abandoned); err != nil {
		return err
	}
	fmt.Printf("cancelled; removed %s\n", abandoned)
	return nil
}

func runStatus(ctx context.Context, rt *app.Runtime, args []string) error {
	fs := newFlags("status")
	key := fs.String("session", defaultSessionKey, "persisted session key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	st, err := rt.Restore(ctx, *key)
	if err != nil {
		return err
	}
	if !st.Pending() {
		fmt.Printf("session %q: idle\n", *key)
		return nil
	}
	fmt.Printf("session %q: waiting for request %d\n  scratch: %s\n", *key, st.CorrelationID, *st.ScratchPath)
	if st.Title != nil {
		fmt.Printf("  title:   %s\n", *st.Title)
	}
	return nil
}

func runState(ctx context.Context, rt *app.Runtime, args []string) error {
	fs := newFlags("state")
	var (
		key  = fs.String("session", defaultSessionKey, "persisted session key")
		from = fs.String("import", "", "replace the persisted session with this JSON document (- for stdin)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *from == "" {
		st, ok, err := rt.Sessions.Load(ctx, *key)
		if err != nil {
			return err
		}
		if !ok {
			st = capture.State{CorrelationID: capture.NoRequest}
		}
		b, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	var (
		doc []byte
		err error
	)
	if *from == "-" {
		doc, err = io.ReadAll(os.Stdin)
	} else {
		doc, err = os.ReadFile(*from)
	}
	if err != nil {
		return err
	}
	var st capture.State
	if err := json.Unmarshal(doc, &st); err != nil {
		return err
	}
	if err := rt.Sessions.Save(ctx, *key, st); err != nil {
		return err
	}
	fmt.Printf("session %q imported\n", *key)
	return nil
}

func runSweep(ctx context.Context, rt *app.Runtime, args []string) error {
	fs := newFlags("sweep")
	key := fs.String("session", defaultSessionKey, "persisted session key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	st, err := rt.Restore(ctx, *key)
	if err != nil {
		return err
	}
	var keep []string
	if st.Pending() {
		keep = append(keep, *st.ScratchPath)
	}
	n, err := rt.Scratch.Sweep(keep...)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d scratch file(s) from %s\n", n, rt.Scratch.Dir())
	return nil
}

func runExport(ctx context.Context, rt *app.Runtime, args []string) error {
	fs := newFlags("export")
	var (
		out     = fs.String("out", "outcomes.xlsx", "output XLSX file path")
		fromStr = fs.String("from", "", "from date YYYY-MM-DD")
		toStr   = fs.String("to", "", "to date YYYY-MM-DD")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	from, err := parseDate("--from", *fromStr)
	if err != nil {
		return err
	}
	to, err := parseDate("--to", *toStr)
	if err != nil {
		return err
	}

	data, err := export.NewService(rt.Outcomes, rt.Logger).ExportOutcomesXLSX(ctx, from, to)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}

func parseDate(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date format, use YYYY-MM-DD: %w", name, err)
	}
	return &t, nil
}
