package decode

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Provider turns a byte stream into an image. Implementations must not close r.
type Provider interface {
	ProvideImage(ctx context.Context, r io.ReadSeeker) (image.Image, error)
}

type ProviderFunc func(ctx context.Context, r io.ReadSeeker) (image.Image, error)

func (f ProviderFunc) ProvideImage(ctx context.Context, r io.ReadSeeker) (image.Image, error) {
	return f(ctx, r)
}

// DefaultProvider decodes at full resolution, refusing images over MaxPixels.
type DefaultProvider struct {
	MaxPixels int64
}

func (p DefaultProvider) ProvideImage(ctx context.Context, r io.ReadSeeker) (image.Image, error) {
	if p.MaxPixels > 0 {
		cfg, err := bounds(r)
		if err != nil {
			return nil, err
		}
		if err := checkBudget(cfg.Width, cfg.Height, p.MaxPixels); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// SubsamplingProvider shrinks images by the power-of-two factor that fits
// the current minimum viewport dimension. The Go decoders cannot subsample
// while decoding, so peak memory is still the full source image: MaxPixels
// is checked against the source size and only the delivered image is smaller.
type SubsamplingProvider struct {
	MinDimension func() int
	MaxPixels    int64
	AutoOrient   bool
}

func (p SubsamplingProvider) ProvideImage(ctx context.Context, r io.ReadSeeker) (image.Image, error) {
	cfg, err := bounds(r)
	if err != nil {
		return nil, err
	}
	if err := checkBudget(cfg.Width, cfg.Height, p.MaxPixels); err != nil {
		return nil, err
	}

	minDim := 0
	if p.MinDimension != nil {
		minDim = p.MinDimension()
	}
	s := SampleSize(minDim, cfg.Width, cfg.Height)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(r, imaging.AutoOrientation(p.AutoOrient))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if s <= 1 {
		return img, nil
	}
	return shrink(img, s), nil
}

// bounds reads the header and rewinds r.
func bounds(r io.ReadSeeker) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return image.Config{}, fmt.Errorf("read image bounds: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return image.Config{}, fmt.Errorf("rewind image stream: %w", err)
	}
	return cfg, nil
}

func shrink(img image.Image, s int) image.Image {
	b := img.Bounds()
	w, h := max(b.Dx()/s, 1), max(b.Dy()/s, 1)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
