package decode

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jivesoftware/ImageCapturer/constants"
)

// ConvertFunc writes a decodable copy of the file at in to out.
type ConvertFunc func(ctx context.Context, in, out string) error

// ConvertingOpener routes local files whose extension is in Exts through
// Convert and opens the converted copy. Everything else goes to Base.
type ConvertingOpener struct {
	Base    Opener
	Convert ConvertFunc
	Exts    map[string]struct{} // defaults to constants.ConvertibleExtensions
	TempDir string              // "" means os.TempDir
}

func (o *ConvertingOpener) Open(ctx context.Context, loc Locator) (io.ReadSeekCloser, error) {
	path, ok := loc.FilePath()
	if !ok || o.Convert == nil || !o.handles(path) {
		return o.Base.Open(ctx, loc)
	}

	tmpDir, err := os.MkdirTemp(o.TempDir, "capture-convert-*")
	if err != nil {
		return nil, err
	}
	out := filepath.Join(tmpDir, "image.png")
	if err := o.Convert(ctx, path, out); err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	f, err := os.Open(out)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("conversion of %s produced no output: %w", path, err)
	}
	return &convertedFile{File: f, dir: tmpDir}, nil
}

func (o *ConvertingOpener) handles(path string) bool {
	exts := o.Exts
	if exts == nil {
		exts = constants.ConvertibleExtensions
	}
	_, ok := exts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

// convertedFile removes its temp directory on Close.
type convertedFile struct {
	*os.File
	dir string
}

func (f *convertedFile) Close() error {
	err := f.File.Close()
	if rmErr := os.RemoveAll(f.dir); err == nil {
		err = rmErr
	}
	return err
}
