package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks network-flaky failures eligible for retry.
	ErrTransient = errors.New("transient network error")
	// ErrInsufficientSpace aborts before the first attempt; never retried.
	ErrInsufficientSpace = errors.New("insufficient disk space")
	// ErrMount distinguishes mount failures from transfer I/O failures.
	ErrMount = errors.New("mount failure")
	// ErrPartialTransfer marks multi-file transfers that partially succeeded.
	ErrPartialTransfer = errors.New("partial transfer failure")
	// ErrScan marks library-scan failures; downgraded to a warning.
	ErrScan = errors.New("library scan failure")
	// ErrValidation marks caller input problems surfaced before any work.
	ErrValidation = errors.New("validation error")
)

// Wrap builds an error message that includes phase context while tagging it
// with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether an error may be retried by the backoff
// controller. Space exhaustion, mount failures, and validation problems are
// final on the first occurrence.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInsufficientSpace),
		errors.Is(err, ErrMount),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrPartialTransfer):
		return false
	default:
		return true
	}
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
