package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means the process cannot succeed in principle
	// (missing credentials). Never retried, never falls back.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidInput is user-correctable (unsupported media type,
	// oversized upload). Never retried, never falls back.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExtraction covers failures to transcribe the source document.
	ErrExtraction = errors.New("extraction failed")
	// ErrAnalysis covers malformed or unparseable structured output.
	ErrAnalysis = errors.New("analysis failed")
	// ErrTimeout is a deadline exceeded at any stage, kept distinct from
	// generic failure so callers can explain slowness.
	ErrTimeout = errors.New("deadline exceeded")
	// ErrCancelled propagates caller cancellation; no fallback is
	// substituted because the caller no longer wants a result.
	ErrCancelled = errors.New("request cancelled")
	// ErrPersistence is non-fatal for the pipeline: the computed result
	// is still returned to the caller.
	ErrPersistence = errors.New("persistence error")
	// ErrTemporary marks transient upstream failures eligible for retry.
	ErrTemporary = errors.New("temporary failure")

	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrUnauthorized     = errors.New("unauthorized")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
