package resolve

import "errors"

var (
	// ErrConflictingOptions is returned when two mutually exclusive
	// dependencies are selected at once.
	ErrConflictingOptions = errors.New("conflicting options")

	// ErrInvalidOption is returned when a selection names an unknown
	// dependency, disables a mandatory one, or enables and disables the
	// same dependency.
	ErrInvalidOption = errors.New("invalid option")

	// ErrDependencyUnavailable is returned when a selected dependency is
	// not installed or its installed version violates its constraint.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrRuntimeNotFound is returned when a language runtime cannot be
	// located or introspected.
	ErrRuntimeNotFound = errors.New("runtime not found")
)
