package chooser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jivesoftware/ImageCapturer/internal/decode"
)

// Converters lists the supported HEIC/HEIF conversion tools.
var Converters = []string{"heif-convert", "magick", "sips"}

// NewConverter returns a decode.ConvertFunc that shells out to tool to turn a
// HEIC/HEIF file into a PNG. A nil runner runs the real command.
func NewConverter(tool string, logger *slog.Logger, r Runner) (decode.ConvertFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil {
		r = execRunner{}
	}
	logger = logger.With("component", "converter", "tool", tool)

	var argv func(in, out string) []string
	switch tool {
	case "heif-convert", "magick":
		argv = func(in, out string) []string { return []string{in, out} }
	case "sips":
		argv = func(in, out string) []string { return []string{"-s", "format", "png", in, "--out", out} }
	default:
		return nil, fmt.Errorf("HEIC not supported: set HEIC_CONVERTER to one of: %s", strings.Join(Converters, " | "))
	}

	return func(ctx context.Context, in, out string) error {
		if _, errb, err := r.Run(ctx, tool, nil, logger, argv(in, out)...); err != nil {
			return fmt.Errorf("%s failed: %w: %s", tool, err, truncate(strings.TrimSpace(string(errb)), 512))
		}
		if _, err := os.Stat(out); err != nil {
			return fmt.Errorf("%s produced no output: %w", tool, err)
		}
		logger.Debug("converted image", "in", in, "out", out)
		return nil
	}, nil
}
