// Package rmerror defines the semantic error kinds shared across RecordManager's
// pipeline stages. Each kind is a sentinel or wrapped type so callers can use
// errors.Is/errors.As instead of matching on message text.
package rmerror

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// Sentinel kinds matched with errors.Is.
var (
	// ErrConfig indicates missing or malformed configuration or mapping files. Fatal at startup.
	ErrConfig = httperror.NewHTTPError(http.StatusInternalServerError, "config error")

	// ErrUnsupportedFormat indicates no driver exists for a record's format.
	ErrUnsupportedFormat = httperror.NewHTTPError(http.StatusUnprocessableEntity, "unsupported format")

	// ErrParse indicates malformed source metadata; the record is skipped, the harvest continues.
	ErrParse = httperror.NewHTTPError(http.StatusUnprocessableEntity, "parse error")

	// ErrEmptyID indicates a record produced neither a driver id nor an OAI id.
	ErrEmptyID = httperror.NewHTTPError(http.StatusUnprocessableEntity, "empty id")

	// ErrTransientNetwork indicates a retryable network failure; surfaced as Fatal once the retry budget is exhausted.
	ErrTransientNetwork = httperror.NewHTTPError(http.StatusBadGateway, "transient network error")

	// ErrDuplicateKey indicates a unique-constraint violation. Ignored for uriCache and queue inserts, surfaced for record writes.
	ErrDuplicateKey = httperror.NewHTTPError(http.StatusConflict, "duplicate key")

	// ErrInvariantViolation is raised by the dedup consistency check; logged and repaired, never fatal.
	ErrInvariantViolation = httperror.NewHTTPError(http.StatusInternalServerError, "invariant violation")

	// ErrCancelled indicates a signal-requested termination.
	ErrCancelled = httperror.NewHTTPError(http.StatusServiceUnavailable, "cancelled")
)

// ConfigErrorf wraps a formatted message as a ConfigError.
func ConfigErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// UnsupportedFormatf wraps a formatted message as an UnsupportedFormat error.
func UnsupportedFormatf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, fmt.Sprintf(format, args...))
}

// ParseErrorf wraps a formatted message as a ParseError.
func ParseErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// TransientNetworkf wraps a formatted message as a TransientNetwork error.
func TransientNetworkf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransientNetwork, fmt.Sprintf(format, args...))
}

// InvariantViolationf wraps a formatted message as an InvariantViolation error.
func InvariantViolationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}
