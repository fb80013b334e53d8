package decode

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestDefaultProviderDecodesFullResolution(t *testing.T) {
	data := pngFixture(t, 40, 30)
	img, err := DefaultProvider{}.ProvideImage(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ProvideImage: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Fatalf("bounds = %v, want 40x30", b)
	}
}

func TestDefaultProviderPixelBudget(t *testing.T) {
	data := pngFixture(t, 40, 30)
	_, err := DefaultProvider{MaxPixels: 100}.ProvideImage(context.Background(), bytes.NewReader(data))
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("err = %v, want ErrOutOfMemory", err)
	}
	var me *MemoryError
	if !errors.As(err, &me) || me.Width != 40 || me.Height != 30 {
		t.Fatalf("expected MemoryError for 40x30, got %v", err)
	}

	// budget check rewinds the stream
	img, err := DefaultProvider{MaxPixels: 1200}.ProvideImage(context.Background(), bytes.NewReader(data))
	if err != nil || img == nil {
		t.Fatalf("ProvideImage within budget: %v", err)
	}
}

func TestDefaultProviderGarbage(t *testing.T) {
	_, err := DefaultProvider{}.ProvideImage(context.Background(), bytes.NewReader([]byte("not an image")))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if errors.Is(err, ErrOutOfMemory) {
		t.Fatal("garbage must not look like a memory failure")
	}
}

func TestProviderHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DefaultProvider{}.ProvideImage(ctx, bytes.NewReader(pngFixture(t, 4, 4)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSubsamplingProviderShrinks(t *testing.T) {
	data := pngFixture(t, 400, 300)
	p := SubsamplingProvider{MinDimension: func() int { return 50 }}

	img, err := p.ProvideImage(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ProvideImage: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 50 || b.Dy() != 37 {
		t.Fatalf("bounds = %v, want 50x37", b)
	}
}

func TestSubsamplingProviderWithoutViewport(t *testing.T) {
	data := pngFixture(t, 64, 48)
	p := SubsamplingProvider{AutoOrient: true}

	img, err := p.ProvideImage(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ProvideImage: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("bounds = %v, want 64x48", b)
	}
}

func TestSubsamplingProviderFollowsViewport(t *testing.T) {
	data := pngFixture(t, 200, 100)
	vp := NewViewport(0)
	p := SubsamplingProvider{MinDimension: vp.MinDimension}

	vp.Observe(100, 400)
	img, err := p.ProvideImage(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ProvideImage: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("bounds = %v, want 100x50", b)
	}
}

func TestSubsamplingBudgetCoversFullDecode(t *testing.T) {
	data := pngFixture(t, 200, 100)
	// s = 4 would deliver 50x25, but the decode still allocates 200x100
	p := SubsamplingProvider{MinDimension: func() int { return 50 }, MaxPixels: 5000}

	_, err := p.ProvideImage(context.Background(), bytes.NewReader(data))
	var me *MemoryError
	if !errors.As(err, &me) || !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("ProvideImage = %v, want MemoryError", err)
	}
	if me.Width != 200 || me.Height != 100 {
		t.Fatalf("budget checked against %dx%d, want the source size", me.Width, me.Height)
	}
}
