package decode

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is matched by errors that signal the decode would exhaust memory.
	ErrOutOfMemory = errors.New("out of memory")
	ErrNoImage     = errors.New("decode returned no image")
	ErrUnsupported = errors.New("unsupported locator scheme")
)

// MemoryError reports an image whose pixel count exceeds the decode budget.
type MemoryError struct {
	Width, Height int
	Budget        int64
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("image %dx%d needs %d pixels, budget is %d",
		e.Width, e.Height, int64(e.Width)*int64(e.Height), e.Budget)
}

func (e *MemoryError) Is(target error) bool {
	return target == ErrOutOfMemory
}

func checkBudget(width, height int, budget int64) error {
	if budget > 0 && int64(width)*int64(height) > budget {
		return &MemoryError{Width: width, Height: height, Budget: budget}
	}
	return nil
}
