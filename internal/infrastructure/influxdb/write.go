package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurementStatus  = "equipment_status"
	measurementCommand = "command"
)

// WriteStatusTransition records that equipmentID reported status at the
// given time. Dropped silently when the client is closed.
func (c *Client) WriteStatusTransition(equipmentID, status string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(statusPoint(equipmentID, status, at))
}

// WriteCommand records a dispatched command.
func (c *Client) WriteCommand(equipmentID, commandType string, payloadBytes int, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(commandPoint(equipmentID, commandType, payloadBytes, at))
}

func statusPoint(equipmentID, status string, at time.Time) *write.Point {
	return write.NewPoint(
		measurementStatus,
		map[string]string{
			"equipment_id": equipmentID,
			"status":       status,
		},
		map[string]interface{}{
			"value": 1,
		},
		at,
	)
}

func commandPoint(equipmentID, commandType string, payloadBytes int, at time.Time) *write.Point {
	return write.NewPoint(
		measurementCommand,
		map[string]string{
			"equipment_id": equipmentID,
			"command_type": commandType,
		},
		map[string]interface{}{
			"payload_bytes": payloadBytes,
		},
		at,
	)
}
