package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes carried by AppError.
const (
	CodeUsageFault         = "USAGE_FAULT"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeInvalidState       = "INVALID_STATE"
	CodeConfig             = "CONFIG_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Usage faults are programmer errors; the rest are recoverable.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrAlreadyPending     = errors.New("a capture request is already pending")
	ErrNotAwaiting        = errors.New("no capture request is pending")
	ErrWrongContext       = errors.New("called outside the owning foreground context")
	ErrStorageUnavailable = errors.New("scratch storage unavailable")
	ErrInvalidState       = errors.New("invalid persisted session state")
	ErrInvalidInput       = errors.New("invalid input")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// UsageFault wraps one of the usage sentinels with call-site detail.
func UsageFault(cause error, format string, args ...any) *AppError {
	return NewAppError(CodeUsageFault, fmt.Sprintf(format, args...), cause)
}

// IsUsageFault reports whether err is a programmer error rather than a runtime failure.
func IsUsageFault(err error) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == CodeUsageFault
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ToStatus maps an application error onto a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidState), errors.Is(err, ErrInvalidInput):
		return InvalidArgumentError(err.Error())
	case errors.Is(err, ErrStorageUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case IsUsageFault(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return InternalError(err.Error())
	}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
