package registry

import (
	"errors"
	"time"
)

// Kind selects one of the vocabularies.
type Kind string

const (
	KindEquipmentStatus   Kind = "equipment_status"
	KindReservationStatus Kind = "reservation_status"
	KindCommandType       Kind = "command_type"
)

// Equipment statuses.
const (
	StatusAvailable   = "Available"
	StatusOccupied    = "Occupied"
	StatusOffline     = "Offline"
	StatusMaintenance = "Maintenance"
)

// Reservation statuses.
const (
	ReservationActive    = "Active"
	ReservationCompleted = "Completed"
	ReservationCanceled  = "Canceled"
)

// Command types. The display names double as MQTT wire values.
const (
	CommandStart   = "Start"
	CommandStop    = "Stop"
	CommandTurnOn  = "Turn On"
	CommandTurnOff = "Turn Off"
	CommandAction  = "Action"
	CommandRestart = "Restart"
)

// vocabulary describes where a kind is stored and what Seed guarantees.
type vocabulary struct {
	table string
	names []string
}

var vocabularies = map[Kind]vocabulary{
	KindEquipmentStatus: {
		table: "equipment_statuses",
		names: []string{StatusAvailable, StatusOccupied, StatusOffline, StatusMaintenance},
	},
	KindReservationStatus: {
		table: "reservation_statuses",
		names: []string{ReservationActive, ReservationCompleted, ReservationCanceled},
	},
	KindCommandType: {
		table: "command_types",
		names: []string{CommandStart, CommandStop, CommandTurnOn, CommandTurnOff, CommandAction, CommandRestart},
	},
}

// Kinds returns every vocabulary kind in seeding order.
func Kinds() []Kind {
	return []Kind{KindEquipmentStatus, KindReservationStatus, KindCommandType}
}

// Names returns the seeded names of kind, or nil for an unknown kind.
func Names(kind Kind) []string {
	v, ok := vocabularies[kind]
	if !ok {
		return nil
	}
	return append([]string(nil), v.names...)
}

// Entry is one row of a vocabulary.
type Entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	// ErrNotFound is returned when an id or name does not resolve.
	ErrNotFound = errors.New("registry: not found")

	// ErrUnknownKind is returned for a Kind outside the three vocabularies.
	ErrUnknownKind = errors.New("registry: unknown kind")
)
