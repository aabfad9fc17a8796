package command

import "errors"

var (
	// ErrNotFound is returned when a command id does not exist.
	ErrNotFound = errors.New("command: not found")

	// ErrEquipmentNotFound is returned when the target equipment does not exist.
	ErrEquipmentNotFound = errors.New("command: equipment not found")

	// ErrTypeNotFound is returned for an unknown command type id.
	ErrTypeNotFound = errors.New("command: command type not found")

	// ErrInvalid is returned when request fields fail validation.
	ErrInvalid = errors.New("command: invalid")

	// ErrPublishFailed is returned with a persisted command whose publish
	// did not reach the broker.
	ErrPublishFailed = errors.New("command: publish failed")
)
