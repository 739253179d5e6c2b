// Package errs classifies the failure taxonomy of the input pipeline so
// callers can decide, in one place, whether an error aborts the process or
// is merely logged and dropped.
package errs

import (
	"errors"
	"fmt"
)

// Kind tags an error with the disposition policy that should apply to it.
type Kind int

const (
	// Unclassified is what Classify returns for an error that was never
	// tagged; it is not fatal.
	Unclassified Kind = iota

	// EnvironmentFatal covers failures to reach the compositor or the
	// physical-input subsystem at all: missing capability, unauthorized
	// virtual-keyboard creation, cannot open the input directory, cannot
	// grab a device, cannot allocate shared memory.
	EnvironmentFatal

	// GeometryFatal covers an output layout with an interior gap outside
	// the grace period tolerated after a removal.
	GeometryFatal

	// GeometryTransient covers an interior gap immediately after an
	// output removal, tolerated while the compositor reflows.
	GeometryTransient

	// ResourceRecoverable covers a dequeued event referencing a layer
	// that no longer exists, or an event with no valid virtual-pointer
	// target.
	ResourceRecoverable

	// DataInconsistency covers a previous cursor position referencing a
	// removed output.
	DataInconsistency

	// ProtocolDegenerate covers a compositor reporting a keymap
	// identical to the one already in effect.
	ProtocolDegenerate
)

func (k Kind) String() string {
	switch k {
	case EnvironmentFatal:
		return "environment-fatal"
	case GeometryFatal:
		return "geometry-fatal"
	case GeometryTransient:
		return "geometry-transient"
	case ResourceRecoverable:
		return "resource-recoverable"
	case DataInconsistency:
		return "data-inconsistency"
	case ProtocolDegenerate:
		return "protocol-degenerate"
	default:
		return "unclassified"
	}
}

// Fatal reports whether errors of this kind should terminate the process.
func (k Kind) Fatal() bool {
	return k == EnvironmentFatal || k == GeometryFatal
}

type kindError struct {
	kind Kind
	msg  string
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *kindError) Unwrap() error { return e.err }

// New builds an error tagged with kind.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Wrap tags err with kind, preserving it for errors.Is/As.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, msg: msg, err: err}
}

// Classify extracts the Kind tag from err, or Unclassified if err was
// never tagged through New/Wrap.
func Classify(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unclassified
}
