package task

import "fmt"

// OutcomeKind tags the three ways an operation can end.
type OutcomeKind int

// Possible outcome kinds
const (
	OutcomeSuccess OutcomeKind = iota + 1
	OutcomeCancelled
	OutcomeFailure
)

// String returns the lowercase name of the kind, used as a metrics label.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is the immutable result of one operation attempt.
// Value is meaningful only for OutcomeSuccess, Err only for OutcomeFailure.
type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T
	Err   error
}

// Success returns a successful outcome carrying value.
func Success[T any](value T) Outcome[T] {
	return Outcome[T]{Kind: OutcomeSuccess, Value: value}
}

// Cancelled returns a cancelled outcome.
func Cancelled[T any]() Outcome[T] {
	return Outcome[T]{Kind: OutcomeCancelled}
}

// Failure returns a failed outcome. A nil err is replaced with ErrNilFailure
// so that failures always carry an error.
func Failure[T any](err error) Outcome[T] {
	if err == nil {
		err = ErrNilFailure
	}
	return Outcome[T]{Kind: OutcomeFailure, Err: err}
}

// IsSuccess reports whether the outcome is a success.
func (o Outcome[T]) IsSuccess() bool { return o.Kind == OutcomeSuccess }

// IsCancelled reports whether the outcome is a cancellation.
func (o Outcome[T]) IsCancelled() bool { return o.Kind == OutcomeCancelled }

// IsFailure reports whether the outcome is a failure.
func (o Outcome[T]) IsFailure() bool { return o.Kind == OutcomeFailure }

// Get unpacks the outcome into the usual value/error pair.
// Cancelled outcomes return ErrCancelled.
func (o Outcome[T]) Get() (T, error) {
	switch o.Kind {
	case OutcomeSuccess:
		return o.Value, nil
	case OutcomeCancelled:
		var zero T
		return zero, ErrCancelled
	default:
		var zero T
		return zero, o.Err
	}
}

// Terminal returns the untyped view of the outcome.
func (o Outcome[T]) Terminal() Terminal {
	return Terminal{Kind: o.Kind, Err: o.Err}
}

func (o Outcome[T]) String() string {
	switch o.Kind {
	case OutcomeSuccess:
		return fmt.Sprintf("success(%v)", o.Value)
	case OutcomeFailure:
		return fmt.Sprintf("failure(%v)", o.Err)
	default:
		return o.Kind.String()
	}
}

// Terminal is the result-type-agnostic part of an Outcome. The scheduler
// only ever routes terminals; it never interprets values or errors.
type Terminal struct {
	Kind OutcomeKind
	Err  error
}

// outcomeOf rebuilds a typed outcome from a terminal. A success terminal
// carries no value, so it can only be translated when the caller has one.
func outcomeOf[T any](t Terminal) Outcome[T] {
	switch t.Kind {
	case OutcomeCancelled:
		return Cancelled[T]()
	case OutcomeFailure:
		return Failure[T](t.Err)
	default:
		return Failure[T](ErrAdmissionTypeMismatch)
	}
}
