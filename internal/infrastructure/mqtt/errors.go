package mqtt

import "errors"

// Errors returned by the MQTT client. Check with errors.Is.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for QoS values outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrUnknownTopic is returned by ParseEquipmentTopic for topics outside
	// the equipments/{id}/{kind} hierarchy.
	ErrUnknownTopic = errors.New("mqtt: topic is not an equipment topic")
)
