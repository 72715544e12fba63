package core

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrConfiguration marks invalid construction arguments.
	ErrConfiguration = errors.New("configuration error")

	// ErrState marks an operation that is invalid in the current lifecycle state.
	ErrState = errors.New("state error")

	// ErrInterrupted marks a blocked call whose context ended before it could
	// proceed. Shared state is left consistent.
	ErrInterrupted = errors.New("interrupted")

	// ErrProcessingFailure marks failures raised by caller-supplied bodies.
	ErrProcessingFailure = errors.New("processing failure")
)

// ConfigErrorf returns an error matching ErrConfiguration.
func ConfigErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// StateErrorf returns an error matching ErrState.
func StateErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// Interrupted wraps cause (typically ctx.Err()) so that it matches both
// ErrInterrupted and the cause.
func Interrupted(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrInterrupted, op, cause)
}

// ProcessingFailure wraps an error or panic raised by a processor or task body.
type ProcessingFailure struct {
	// Source is the queue or scheduler that ran the body.
	Source string
	// Member is the processor id or task category.
	Member string
	Err    error
	Panic  any
	Stack  []byte
}

func (f *ProcessingFailure) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("%s/%s: panic: %v", f.Source, f.Member, f.Panic)
	}
	return fmt.Sprintf("%s/%s: %v", f.Source, f.Member, f.Err)
}

func (f *ProcessingFailure) Unwrap() error { return f.Err }

func (f *ProcessingFailure) Is(target error) bool { return target == ErrProcessingFailure }

// NewPanicFailure converts a recovered panic value.
func NewPanicFailure(source, member string, rec any, stack []byte) *ProcessingFailure {
	f := &ProcessingFailure{Source: source, Member: member, Panic: rec, Stack: stack}
	if err, ok := rec.(error); ok {
		f.Err = err
	}
	return f
}

// aggregateFailure is the combined failure reported at stop/shutdown.
type aggregateFailure struct {
	err error
}

func (a *aggregateFailure) Error() string {
	return fmt.Sprintf("%d failure(s): %v", len(multierr.Errors(a.err)), a.err)
}

func (a *aggregateFailure) Unwrap() []error { return multierr.Errors(a.err) }

func (a *aggregateFailure) Is(target error) bool { return target == ErrProcessingFailure }

// CombineFailures folds errs into one error whose message concatenates every
// underlying message. It returns nil when errs holds no non-nil error.
func CombineFailures(errs ...error) error {
	combined := multierr.Combine(errs...)
	if combined == nil {
		return nil
	}
	return &aggregateFailure{err: combined}
}

// Failures lists the individual errors inside a value returned by
// CombineFailures. Any other error is returned as a single element.
func Failures(err error) []error {
	var agg *aggregateFailure
	if errors.As(err, &agg) {
		return multierr.Errors(agg.err)
	}
	if err == nil {
		return nil
	}
	return []error{err}
}
