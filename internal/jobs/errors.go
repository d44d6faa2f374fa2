package jobs

import (
	"errors"
	"fmt"

	"vocalsplit/internal/services"
)

var (
	// ErrNotFound is returned for unknown job identifiers. It matches
	// services.ErrNotFound under errors.Is.
	ErrNotFound = fmt.Errorf("job %w", services.ErrNotFound)
	// ErrDuplicateID is returned when Create sees an identifier twice.
	ErrDuplicateID = errors.New("duplicate job id")
	// ErrInvalidTransition is returned when an update would move a job along an
	// edge the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid job transition")
	// ErrInvariant is returned when an update would leave a record in an
	// inconsistent shape.
	ErrInvariant = errors.New("job invariant violated")
)
