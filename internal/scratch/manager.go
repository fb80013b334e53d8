package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jivesoftware/ImageCapturer/constants"
	"github.com/jivesoftware/ImageCapturer/internal/common"
)

// Manager hands out uniquely named scratch paths inside one directory.
type Manager struct {
	dir    string
	logger *slog.Logger
}

func NewManager(dir string, logger *slog.Logger) *Manager {
	if dir == "" {
		dir = common.DefaultScratchDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dir: filepath.Clean(dir), logger: logger.With("component", "scratch")}
}

func (m *Manager) Dir() string { return m.dir }

// Allocate ensures the directory exists and returns a fresh path in it.
// The file itself is left for the external producer to create.
func (m *Manager) Allocate() (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		m.logger.Error("failed to create scratch directory", "dir", m.dir, "error", err)
		return "", common.NewAppError(common.CodeStorageUnavailable,
			fmt.Sprintf("create %s", m.dir), errors.Join(common.ErrStorageUnavailable, err))
	}
	name := constants.ScratchPrefix + uuid.NewString() + constants.ScratchExt
	path := filepath.Join(m.dir, name)
	m.logger.Debug("allocated scratch file", "path", path)
	return path, nil
}

// Delete removes path. A missing file is not an error.
func (m *Manager) Delete(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err == nil {
		m.logger.Debug("deleted scratch file", "path", path)
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	m.logger.Warn("failed to delete scratch file", "path", path, "error", err)
	return err
}

// Owns reports whether path is a scratch file this manager could have allocated.
func (m *Manager) Owns(path string) bool {
	if path == "" || filepath.Dir(filepath.Clean(path)) != m.dir {
		return false
	}
	base := filepath.Base(path)
	return strings.HasPrefix(base, constants.ScratchPrefix) && strings.HasSuffix(base, constants.ScratchExt)
}

// Sweep deletes scratch files in the directory except those listed in keep.
func (m *Manager) Sweep(keep ...string) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	skip := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		skip[filepath.Clean(k)] = struct{}{}
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		if _, ok := skip[path]; ok || !m.Owns(path) {
			continue
		}
		if err := m.Delete(path); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("swept stale scratch files", "count", removed)
	}
	return removed, nil
}
