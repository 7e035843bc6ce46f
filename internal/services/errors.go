package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks failures that no retry can fix (bad input, unsupported format).
	ErrValidation = errors.New("validation error")
	// ErrTransient marks recoverable failures that the orchestrator retries with backoff.
	ErrTransient = errors.New("transient failure")
	// ErrExternalTool marks a non-zero exit or I/O fault from an external tool invocation.
	ErrExternalTool = errors.New("external tool error")
	// ErrQuota marks admission-time rejections; no task state is created.
	ErrQuota = errors.New("task quota exceeded")
	// ErrNotFound marks lookups for unknown task identifiers.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsPermanent reports whether a stage error must fail the task immediately
// without further attempts.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransient reports whether a stage error should be retried with backoff.
// External tool failures and timeouts count as transient; an unclassified
// fault also falls back to transient so it never skips the retry policy.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrExternalTool) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return !errors.Is(err, context.Canceled)
}

// Message extracts the human-readable portion of a classified error, stripping
// the sentinel prefix so the persisted error_message reads cleanly.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{ErrValidation, ErrTransient, ErrExternalTool, ErrQuota, ErrNotFound} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
