package reservation

import "errors"

var (
	// ErrNotFound is returned when a reservation id does not exist.
	ErrNotFound = errors.New("reservation: not found")

	// ErrUserNotFound is returned when the user is missing or inactive.
	ErrUserNotFound = errors.New("reservation: user not found or inactive")

	// ErrEquipmentNotFound is returned when the equipment does not exist.
	ErrEquipmentNotFound = errors.New("reservation: equipment not found")

	// ErrStatusNotFound is returned for an unknown reservation status id.
	ErrStatusNotFound = errors.New("reservation: status not found")

	// ErrInvalid is returned when request fields fail validation.
	ErrInvalid = errors.New("reservation: invalid")

	// ErrInvalidTransition is returned for a status change the ledger forbids.
	ErrInvalidTransition = errors.New("reservation: invalid status transition")

	// ErrStatusMisconfigured means a built-in status is missing from the
	// vocabulary. It indicates a broken deployment, not a bad request.
	ErrStatusMisconfigured = errors.New("reservation: status vocabulary misconfigured")
)
