package uuidkit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/zero-day-ai/uuidkit/clock"
	"github.com/zero-day-ai/uuidkit/generator"
	"github.com/zero-day-ai/uuidkit/serial"
	"github.com/zero-day-ai/uuidkit/state"
	"github.com/zero-day-ai/uuidkit/uuid"
)

// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
var ErrInvalidConfig = errors.New("invalid configuration")

// Error kinds categorize errors by their type.
const (
	// KindMalformedInput represents text or bytes that do not decode to a UUID.
	KindMalformedInput = "malformed_input"

	// KindUnsupportedField represents a version 1 field read from another version.
	KindUnsupportedField = "unsupported_field"

	// KindClockOverrun represents a spent tick budget.
	KindClockOverrun = "clock_overrun"

	// KindGenerationExhausted represents a version 1 request that ran out of attempts.
	KindGenerationExhausted = "generation_exhausted"

	// KindStoreUnavailable represents a state medium that is missing or unreachable.
	KindStoreUnavailable = "store_unavailable"

	// KindStore represents a state document that could not be decoded or written.
	KindStore = "store"

	// KindSequenceExhausted represents a serial generator past its maximum.
	KindSequenceExhausted = "sequence_exhausted"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindInternal represents any other failure.
	KindInternal = "internal"
)

// Error is a structured error that records the failed operation and the
// category of the failure.
//
// Example usage:
//
//	id, err := kit.V1(ctx)
//	if uuidkit.KindOf(err) == uuidkit.KindGenerationExhausted {
//		// shed load
//	}
type Error struct {
	// Op is the operation that failed (e.g., "Kit.V1", "Kit.Parse").
	Op string

	// Kind categorizes the error (e.g., KindMalformedInput).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional).
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("uuidkit: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("uuidkit: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("uuidkit: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a target *Error on Kind, and on Op when the target sets one.
// Any other target is compared against the underlying error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of e with ctx merged into its context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	newErr.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		newErr.Context[k] = v
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// KindOf classifies err. Errors that are not an *Error are classified by the
// package sentinel they wrap. KindOf(nil) is the empty string.
func KindOf(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}

	switch {
	case errors.Is(err, uuid.ErrMalformed), errors.Is(err, uuid.ErrUnsupportedHash):
		return KindMalformedInput
	case errors.Is(err, uuid.ErrUnsupportedField):
		return KindUnsupportedField
	case errors.Is(err, generator.ErrGenerationExhausted):
		return KindGenerationExhausted
	case errors.Is(err, clock.ErrOverrun):
		return KindClockOverrun
	case errors.Is(err, state.ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, state.ErrStore):
		return KindStore
	case errors.Is(err, serial.ErrSequenceExhausted):
		return KindSequenceExhausted
	case errors.Is(err, ErrInvalidConfig):
		return KindConfiguration
	default:
		return KindInternal
	}
}

// wrap returns nil for a nil err and an *Error classified by KindOf
// otherwise.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: KindOf(err), Err: err}
}

// wrapWith is wrap with ctx attached to the resulting *Error.
func wrapWith(op string, err error, ctx map[string]any) error {
	if err == nil {
		return nil
	}
	return (&Error{Op: op, Kind: KindOf(err), Err: err}).WithContext(ctx)
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. If logger is nil, slog.Default() is used. The close
// error is returned wrapped with the resource name.
//
//	defer uuidkit.CloseWithLog(store, logger, "redis store")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) error {
	if closer == nil {
		return nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	return nil
}
