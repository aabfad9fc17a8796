package mqtt

import (
	"fmt"
	"strings"
)

const (
	// TopicPrefixEquipment is the root of every per-device topic.
	TopicPrefixEquipment = "equipments"

	// TopicPrefixSystem carries service presence (online/offline, LWT).
	TopicPrefixSystem = "equipctl/system"
)

// Message kinds, the last segment of an equipment topic.
const (
	KindCommands = "commands"
	KindStatus   = "status"
	KindFeedback = "feedback"
)

// Topics builds the topic strings used between the core and devices.
//
//	mqtt.Topics{}.EquipmentStatus("3f0c...")
//	// equipments/3f0c.../status
type Topics struct{}

// EquipmentCommands is where the core publishes {commandType, payload}.
func (Topics) EquipmentCommands(equipmentID string) string {
	return equipmentTopic(equipmentID, KindCommands)
}

// EquipmentStatus is where a device reports {status}.
func (Topics) EquipmentStatus(equipmentID string) string {
	return equipmentTopic(equipmentID, KindStatus)
}

// EquipmentFeedback is where a device reports {message} after a command.
func (Topics) EquipmentFeedback(equipmentID string) string {
	return equipmentTopic(equipmentID, KindFeedback)
}

// AllEquipmentCommands matches commands for every equipment.
//
// Pattern: equipments/+/commands
func (Topics) AllEquipmentCommands() string {
	return equipmentTopic("+", KindCommands)
}

// AllEquipmentStatus matches status reports from every equipment.
//
// Pattern: equipments/+/status
func (Topics) AllEquipmentStatus() string {
	return equipmentTopic("+", KindStatus)
}

// AllEquipmentFeedback matches feedback from every equipment.
//
// Pattern: equipments/+/feedback
func (Topics) AllEquipmentFeedback() string {
	return equipmentTopic("+", KindFeedback)
}

// SystemStatus returns the retained presence topic.
//
// Example: equipctl/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

func equipmentTopic(equipmentID, kind string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixEquipment, equipmentID, kind)
}

// ParseEquipmentTopic splits equipments/{id}/{kind} into its parts.
//
// The kind is returned as is; callers route on it and drop kinds they do
// not know. Wildcard ids are rejected since concrete messages never carry them.
func ParseEquipmentTopic(topic string) (equipmentID, kind string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefixEquipment {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if parts[1] == "" || parts[1] == "+" || parts[1] == "#" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	return parts[1], parts[2], nil
}
