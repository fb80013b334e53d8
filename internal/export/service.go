package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jivesoftware/ImageCapturer/internal/repository"
)

const sheet = "Outcomes"

// Service turns the outcome journal into XLSX workbooks.
type Service struct {
	outcomes repository.OutcomeRepository
	logger   *slog.Logger
}

func NewService(outcomes repository.OutcomeRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{outcomes: outcomes, logger: logger}
}

// ExportOutcomesXLSX returns a workbook for outcomes recorded in the given date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> everything.
func (s *Service) ExportOutcomesXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	lo, hi := window(from, to, time.Now())

	entries, err := s.outcomes.List(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headers := []string{
		"Recorded At",
		"Session",
		"Correlation ID",
		"Outcome",
		"Source",
		"Width",
		"Height",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, e := range entries {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, e.RecordedAt.UTC().Format(time.RFC3339))
		write(2, e.SessionKey)
		write(3, e.CorrelationID)
		write(4, string(e.Kind))
		write(5, e.Origin)
		if e.Width > 0 {
			write(6, e.Width)
			write(7, e.Height)
		}
		write(8, truncate(e.Error, 200))
	}

	_ = f.SetColWidth(sheet, "A", "A", 22) // timestamp
	_ = f.SetColWidth(sheet, "B", "B", 16) // session
	_ = f.SetColWidth(sheet, "C", "D", 16)
	_ = f.SetColWidth(sheet, "E", "E", 60) // source
	_ = f.SetColWidth(sheet, "F", "G", 10)
	_ = f.SetColWidth(sheet, "H", "H", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(entries),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// window normalizes the bounds to whole UTC days; to is inclusive.
func window(from, to *time.Time, now time.Time) (time.Time, time.Time) {
	var lo, hi time.Time
	if from != nil {
		lo = day(*from)
	}
	if to != nil {
		hi = day(*to)
	} else if from != nil {
		hi = day(now)
	}
	if !hi.IsZero() {
		hi = hi.Add(24*time.Hour - time.Nanosecond)
	}
	return lo, hi
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
