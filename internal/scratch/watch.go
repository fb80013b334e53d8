package scratch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jivesoftware/ImageCapturer/internal/common"
)

// WaitWritten blocks until the scratch file at path exists, is non-empty and
// has seen no writes for settle, or until ctx is done. It serves producers
// that run outside this process and only report success by filling the file.
func (m *Manager) WaitWritten(ctx context.Context, path string, settle time.Duration) error {
	path = filepath.Clean(path)
	if !m.Owns(path) {
		return common.UsageFault(common.ErrInvalidArgument, "%s is not a scratch file in %s", path, m.dir)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", m.dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Error("failed to create fsnotify watcher", "error", err)
		return err
	}
	defer w.Close()
	if err := w.Add(m.dir); err != nil {
		m.logger.Error("failed to watch scratch directory", "dir", m.dir, "error", err)
		return err
	}

	timer := time.NewTimer(settle)
	defer timer.Stop()
	if !written(path) {
		timer.Stop()
	}

	m.logger.Debug("waiting for scratch file", "path", path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("watcher closed while waiting for %s", path)
			}
			if filepath.Clean(e.Name) != path || !e.Has(fsnotify.Create|fsnotify.Write) {
				continue
			}
			// restart the quiet period on every write burst
			timer.Reset(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("watcher closed while waiting for %s", path)
			}
			m.logger.Warn("watcher error", "error", err)
		case <-timer.C:
			if written(path) {
				m.logger.Debug("scratch file written", "path", path)
				return nil
			}
		}
	}
}

func written(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}
