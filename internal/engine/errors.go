package engine

import (
	"errors"
	"fmt"
	"strings"
)

// RuntimeError represents a programmer or graph error detected by the engine.
//
// Runtime errors include:
//   - Not executable: a queue or signal operation named something that is not a node
//   - Self dependency: a node declared a dependency on itself
//   - Unknown join target: a switch selector picked an index outside its targets
//   - Unknown object / signal: the control surface was asked for something unregistered
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Node identifies the node involved, if any.
	Node string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeNotExecutable indicates a queue operation on a non-node value.
	ErrCodeNotExecutable RuntimeErrorCode = "NOT_EXECUTABLE"

	// ErrCodeSelfDependency indicates a node tried to depend on itself.
	ErrCodeSelfDependency RuntimeErrorCode = "SELF_DEPENDENCY"

	// ErrCodeUnknownJoinTarget indicates a switch selector returned an out-of-range index.
	ErrCodeUnknownJoinTarget RuntimeErrorCode = "UNKNOWN_JOIN_TARGET"

	// ErrCodeUnknownObject indicates a registry lookup for an unregistered name.
	ErrCodeUnknownObject RuntimeErrorCode = "UNKNOWN_OBJECT"

	// ErrCodeUnknownSignal indicates an object does not answer the requested signal.
	ErrCodeUnknownSignal RuntimeErrorCode = "UNKNOWN_SIGNAL"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsNotExecutable returns true if the error is a NOT_EXECUTABLE runtime error.
func IsNotExecutable(err error) bool { return hasCode(err, ErrCodeNotExecutable) }

// IsSelfDependency returns true if the error is a SELF_DEPENDENCY runtime error.
func IsSelfDependency(err error) bool { return hasCode(err, ErrCodeSelfDependency) }

// IsUnknownJoinTarget returns true if the error is an UNKNOWN_JOIN_TARGET runtime error.
func IsUnknownJoinTarget(err error) bool { return hasCode(err, ErrCodeUnknownJoinTarget) }

// IsUnknownObject returns true if the error is an UNKNOWN_OBJECT runtime error.
func IsUnknownObject(err error) bool { return hasCode(err, ErrCodeUnknownObject) }

// IsUnknownSignal returns true if the error is an UNKNOWN_SIGNAL runtime error.
func IsUnknownSignal(err error) bool { return hasCode(err, ErrCodeUnknownSignal) }

// NewNotExecutableError creates a RuntimeError for a value that is not a node.
func NewNotExecutableError(v any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNotExecutable,
		Message: fmt.Sprintf("%T is not executable", v),
	}
}

// NewSelfDependencyError creates a RuntimeError for a node depending on itself.
func NewSelfDependencyError(node string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeSelfDependency,
		Message: "node cannot depend on itself",
		Node:    node,
	}
}

// NewUnknownJoinTargetError creates a RuntimeError for a bad switch selection.
func NewUnknownJoinTargetError(node string, index, targets int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownJoinTarget,
		Message: fmt.Sprintf("switch selected target %d of %d", index, targets),
		Node:    node,
		Details: map[string]string{
			"index":   fmt.Sprintf("%d", index),
			"targets": fmt.Sprintf("%d", targets),
		},
	}
}

// NewUnknownObjectError creates a RuntimeError for an unregistered name.
func NewUnknownObjectError(name string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownObject,
		Message: fmt.Sprintf("no object named %q", name),
	}
}

// NewUnknownSignalError creates a RuntimeError for a signal the object
// does not answer.
func NewUnknownSignalError(object, signal string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownSignal,
		Message: fmt.Sprintf("%s does not answer %q", object, signal),
		Details: map[string]string{"object": object, "signal": signal},
	}
}

// CircularDependencyError is returned when dependency resolution re-enters a
// node that is still being resolved. Cycle lists the node IDs in discovery
// order, ending with the repeated node.
type CircularDependencyError struct {
	Cycle []string
}

// Error implements the error interface.
func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Cycle, " -> "))
}

// IsCircularDependency returns true if the error is a CircularDependencyError.
func IsCircularDependency(err error) bool {
	var ce *CircularDependencyError
	return errors.As(err, &ce)
}

// TerminateError is the cooperative cancellation signal returned by
// CheckTerminate. The run loop re-queues the in-flight entry at the front
// and returns cleanly.
type TerminateError struct {
	Node string
}

// Error implements the error interface.
func (e *TerminateError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("terminated (node=%s)", e.Node)
	}
	return "terminated"
}

// IsTerminateError returns true if the error is a TerminateError.
func IsTerminateError(err error) bool {
	var te *TerminateError
	return errors.As(err, &te)
}
