package reservation

import (
	"time"

	"github.com/nerrad567/equipctl/internal/registry"
)

// Reservation is a user's booking of one equipment for a time window.
type Reservation struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	UserName      string    `json:"userName"`
	EquipmentID   string    `json:"equipmentId"`
	EquipmentName string    `json:"equipmentName"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	StatusID      string    `json:"statusId"`
	StatusName    string    `json:"statusName"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CreateRequest holds the fields of a new reservation.
type CreateRequest struct {
	UserID      string    `json:"userId"`
	EquipmentID string    `json:"equipmentId"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

// UpdateRequest changes the status of a reservation.
type UpdateRequest struct {
	StatusID string `json:"statusId"`
}

// transitions lists the statuses reachable from each status, excluding
// the status itself which is always a no-op.
var transitions = map[string][]string{
	registry.ReservationActive:    {registry.ReservationCompleted, registry.ReservationCanceled},
	registry.ReservationCompleted: nil,
	registry.ReservationCanceled:  nil,
}

// canTransition reports whether from may move to to.
func canTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
