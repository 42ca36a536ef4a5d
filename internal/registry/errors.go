package registry

import "errors"

// Domain errors for the registry package.
var (
	// ErrAlreadyExists is returned by Add when a record with the roll exists.
	ErrAlreadyExists = errors.New("registry: roll already enrolled")

	// ErrEmptyRoll is returned by Add when the roll is blank.
	ErrEmptyRoll = errors.New("registry: roll is required")

	// ErrCorruptDocument wraps a parse failure of the persisted document.
	ErrCorruptDocument = errors.New("registry: document is corrupt")
)
