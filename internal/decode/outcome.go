package decode

import (
	"errors"
	"fmt"
	"image"
	"reflect"
	"runtime"
	"strings"

	"github.com/jivesoftware/ImageCapturer/constants"
)

// Outcome is the single result of one decode. It is one of Success,
// IOFailure or MemoryFailure.
type Outcome interface {
	Kind() constants.OutcomeKind
	sealed()
}

type Success struct {
	Image image.Image
	// Origin is the external locator, empty when the scratch file was read.
	Origin Locator
	// File is the scratch path when it was the read source and still exists.
	File string
}

type IOFailure struct {
	Err error
}

// MemoryFailure carries either the out-of-memory signal or the
// nil-dereference fault that stands in for it.
type MemoryFailure struct {
	Signal error
	Fault  error
}

func (Success) Kind() constants.OutcomeKind       { return constants.OutcomeImageReady }
func (IOFailure) Kind() constants.OutcomeKind     { return constants.OutcomeIOFailure }
func (MemoryFailure) Kind() constants.OutcomeKind { return constants.OutcomeOutOfMemory }

func (Success) sealed()       {}
func (IOFailure) sealed()     {}
func (MemoryFailure) sealed() {}

func (f MemoryFailure) Cause() error {
	if f.Signal != nil {
		return f.Signal
	}
	return f.Fault
}

// Attempt is what a decode produced before classification.
type Attempt struct {
	Image  image.Image
	Err    error
	Panic  any
	Origin Locator
	File   string
}

// Classify maps an Attempt onto exactly one Outcome.
func Classify(a Attempt) Outcome {
	if a.Panic != nil {
		return classifyErr(panicError(a.Panic))
	}
	if a.Err != nil {
		return classifyErr(a.Err)
	}
	if isNilImage(a.Image) {
		return IOFailure{Err: ErrNoImage}
	}
	return Success{Image: a.Image, Origin: a.Origin, File: a.File}
}

func classifyErr(err error) Outcome {
	switch {
	case isNilDeref(err):
		return MemoryFailure{Fault: err}
	case errors.Is(err, ErrOutOfMemory):
		return MemoryFailure{Signal: err}
	default:
		return IOFailure{Err: err}
	}
}

func panicError(p any) error {
	if err, ok := p.(error); ok {
		return err
	}
	return fmt.Errorf("decode panicked: %v", p)
}

func isNilDeref(err error) bool {
	var re runtime.Error
	return errors.As(err, &re) && strings.Contains(re.Error(), "nil pointer dereference")
}

func isNilImage(img image.Image) bool {
	if img == nil {
		return true
	}
	v := reflect.ValueOf(img)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
