package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jivesoftware/ImageCapturer/constants"
	"github.com/jivesoftware/ImageCapturer/internal/repository"
)

type fakeOutcomes struct {
	entries  []repository.OutcomeEntry
	err      error
	from, to time.Time
}

func (f *fakeOutcomes) Record(context.Context, repository.OutcomeEntry) error { return nil }

func (f *fakeOutcomes) List(_ context.Context, from, to time.Time) ([]repository.OutcomeEntry, error) {
	f.from, f.to = from, to
	return f.entries, f.err
}

func TestExportOutcomesXLSX(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	repo := &fakeOutcomes{entries: []repository.OutcomeEntry{
		{SessionKey: "main", CorrelationID: 1, Kind: constants.OutcomeImageReady, Origin: "file:///a.png", Width: 640, Height: 480, RecordedAt: at},
		{SessionKey: "main", CorrelationID: 2, Kind: constants.OutcomeIOFailure, Error: "no such file", RecordedAt: at.Add(time.Minute)},
	}}
	svc := NewService(repo, nil)

	data, err := svc.ExportOutcomesXLSX(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("ExportOutcomesXLSX: %v", err)
	}
	if !repo.from.IsZero() || !repo.to.IsZero() {
		t.Fatalf("unbounded export queried %v..%v", repo.from, repo.to)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][3] != "Outcome" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "2026-05-04T10:30:00Z" || rows[1][3] != "IMAGE_READY" || rows[1][5] != "640" {
		t.Fatalf("first row = %v", rows[1])
	}
	if rows[2][3] != "IO_FAILURE" || rows[2][7] != "no such file" {
		t.Fatalf("second row = %v", rows[2])
	}
}

func TestExportPropagatesQueryError(t *testing.T) {
	svc := NewService(&fakeOutcomes{err: errors.New("db down")}, nil)
	if _, err := svc.ExportOutcomesXLSX(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestWindow(t *testing.T) {
	now := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
	from := time.Date(2026, 6, 1, 18, 45, 0, 0, time.UTC)
	to := time.Date(2026, 6, 3, 1, 0, 0, 0, time.UTC)

	lo, hi := window(&from, nil, now)
	if !lo.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("lo = %v", lo)
	}
	if !hi.Equal(time.Date(2026, 6, 11, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)) {
		t.Fatalf("hi = %v", hi)
	}

	lo, hi = window(nil, &to, now)
	if !lo.IsZero() || !hi.Equal(time.Date(2026, 6, 4, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)) {
		t.Fatalf("window = %v..%v", lo, hi)
	}

	lo, hi = window(nil, nil, now)
	if !lo.IsZero() || !hi.IsZero() {
		t.Fatalf("window = %v..%v", lo, hi)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}
