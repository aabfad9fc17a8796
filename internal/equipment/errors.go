package equipment

import "errors"

var (
	// ErrNotFound is returned when an equipment id does not exist.
	ErrNotFound = errors.New("equipment: not found")

	// ErrNameTaken is returned when a name is already used by another equipment.
	ErrNameTaken = errors.New("equipment: name already exists")

	// ErrStatusNotFound is returned when a status id or name does not resolve.
	ErrStatusNotFound = errors.New("equipment: status not found")

	// ErrInvalid is returned when a field fails validation.
	ErrInvalid = errors.New("equipment: invalid")

	// ErrHasDependents is returned by Delete while reservations or commands
	// still reference the equipment.
	ErrHasDependents = errors.New("equipment: referenced by reservations or commands")

	// ErrNoStatusLog is returned by AttachFeedback when the equipment has no
	// log entry to attach to.
	ErrNoStatusLog = errors.New("equipment: no status log entry")
)
