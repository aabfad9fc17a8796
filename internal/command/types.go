package command

import (
	"encoding/json"
	"time"
)

// MaxPayloadLength bounds Command.Payload, in characters.
const MaxPayloadLength = 200

// Command is one control instruction sent to a device.
type Command struct {
	ID            string    `json:"id"`
	EquipmentID   string    `json:"equipmentId"`
	EquipmentName string    `json:"equipmentName"`
	CommandTypeID string    `json:"commandTypeId"`
	CommandName   string    `json:"commandName"`
	Payload       *string   `json:"payload"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SubmitRequest holds the fields of a new command.
type SubmitRequest struct {
	EquipmentID   string  `json:"equipmentId"`
	CommandTypeID string  `json:"commandTypeId"`
	Payload       *string `json:"payload,omitempty"`
}

// Message is the body published on a commands topic.
type Message struct {
	CommandType string  `json:"commandType"`
	Payload     *string `json:"payload"`
}

// UnmarshalJSON also accepts the snake_case command_type key that older
// devices and bridges emit.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		CommandType      *string `json:"commandType"`
		CommandTypeSnake *string `json:"command_type"`
		Payload          *string `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Payload = raw.Payload
	switch {
	case raw.CommandType != nil:
		m.CommandType = *raw.CommandType
	case raw.CommandTypeSnake != nil:
		m.CommandType = *raw.CommandTypeSnake
	default:
		m.CommandType = ""
	}
	return nil
}
