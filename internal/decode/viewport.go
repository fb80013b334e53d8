package decode

import "sync/atomic"

// Viewport remembers the smallest non-zero dimension any display surface has reported.
type Viewport struct {
	min atomic.Int64
}

func NewViewport(initial int) *Viewport {
	v := &Viewport{}
	if initial > 0 {
		v.min.Store(int64(initial))
	}
	return v
}

// Observe records a surface size. A surface with a zero or negative side
// has not been laid out yet and is ignored.
func (v *Viewport) Observe(width, height int) {
	d := int64(min(width, height))
	if d <= 0 {
		return
	}
	for {
		cur := v.min.Load()
		if cur != 0 && cur <= d {
			return
		}
		if v.min.CompareAndSwap(cur, d) {
			return
		}
	}
}

// MinDimension returns 0 until a surface has been observed.
func (v *Viewport) MinDimension() int {
	return int(v.min.Load())
}
