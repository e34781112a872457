// Package apperrors is the structured error type shared across the
// extraction, retrieval, and matching tools.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for targeted handling and logging, mirroring the
// error taxonomy every driver must recognize.
type Kind string

const (
	KindInputMissing   Kind = "input_missing"
	KindCorrupt        Kind = "corrupt"
	KindDtypeMismatch  Kind = "dtype_mismatch"
	KindGpuUnavailable Kind = "gpu_unavailable"
	KindDegenerate     Kind = "degenerate_result"
	KindConfig         Kind = "config"
	KindTransient      Kind = "transient"
)

// Error is the structured error type used throughout the module.
type Error struct {
	Kind      Kind
	Op        string // operation name, e.g. "idc.write" or "match.load"
	Err       error
	Retryable bool
	// Fatal marks errors that must raise a pipeline stop flag rather than
	// being absorbed by the task that produced them (GpuUnavailable,
	// ContextLost per the error-handling design).
	Fatal bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a non-retryable, non-fatal Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Fatal creates an Error that callers must treat as fatal to the pipeline
// (GPU context loss, unavailable GPU service).
func Fatal(op string, err error) *Error {
	return &Error{Kind: KindGpuUnavailable, Op: op, Err: err, Fatal: true}
}

// Transient creates a retryable Error.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err, Retryable: true}
}

// Wrap wraps err with operation context, returning nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(kind, op, err)
}

// IsRetryable reports whether err is a retryable Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsFatal reports whether err must raise a stop flag.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal
	}
	return false
}

// IsKind reports whether err belongs to the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel errors for common failure modes.
var (
	ErrBadMagic          = errors.New("idc: bad magic number")
	ErrTruncated         = errors.New("idc: truncated read")
	ErrUnalignedBlobSize = errors.New("idc: blob size not divisible by dtype width")
	ErrUnknownBlob       = errors.New("idc: unknown blob name")
	ErrDtypeMismatch     = errors.New("match: descriptor dtype mismatch")
	ErrEmptyInput        = errors.New("empty input")
	ErrQueueClosed       = errors.New("pipeline: queue closed")
)
