package decode

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Locator is an opaque reference to decodable bytes: a bare path or a URL.
type Locator string

func FileLocator(path string) Locator {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return Locator(u.String())
}

// Scheme returns the lower-cased URL scheme, or "" for bare paths.
func (l Locator) Scheme() string {
	s := string(l)
	i := strings.Index(s, "://")
	if i <= 1 {
		// no scheme, or a drive letter
		return ""
	}
	return strings.ToLower(s[:i])
}

// FilePath returns the filesystem path for bare paths and file:// URLs.
func (l Locator) FilePath() (string, bool) {
	switch l.Scheme() {
	case "":
		return string(l), l != ""
	case "file":
		u, err := url.Parse(string(l))
		if err != nil {
			return "", false
		}
		return filepath.FromSlash(u.Path), true
	default:
		return "", false
	}
}

func (l Locator) String() string { return string(l) }

// Opener resolves a Locator to a seekable stream.
type Opener interface {
	Open(ctx context.Context, loc Locator) (io.ReadSeekCloser, error)
}

type OpenFunc func(ctx context.Context, loc Locator) (io.ReadSeekCloser, error)

// SchemeOpener opens local files and dispatches other schemes to registered funcs.
type SchemeOpener struct {
	mu      sync.RWMutex
	schemes map[string]OpenFunc
}

func NewOpener() *SchemeOpener {
	return &SchemeOpener{schemes: make(map[string]OpenFunc)}
}

func (o *SchemeOpener) Register(scheme string, fn OpenFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.schemes[strings.ToLower(scheme)] = fn
}

func (o *SchemeOpener) Open(ctx context.Context, loc Locator) (io.ReadSeekCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loc == "" {
		return nil, fmt.Errorf("open: empty locator")
	}
	if path, ok := loc.FilePath(); ok {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return f, nil
	}

	o.mu.RLock()
	fn, ok := o.schemes[loc.Scheme()]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open %s: %w", loc, ErrUnsupported)
	}
	return fn(ctx, loc)
}
