package equipment

import (
	"time"

	"github.com/nerrad567/equipctl/internal/patch"
)

const (
	// MaxNameLength bounds Equipment.Name, in characters.
	MaxNameLength = 60

	// MaxDetailsLength bounds StatusLogEntry.Details, in characters.
	MaxDetailsLength = 300
)

// Equipment is one controllable physical unit.
type Equipment struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	CurrentStatusID   *string    `json:"currentStatusId"`
	CurrentStatusName *string    `json:"currentStatusName"`
	Location          *string    `json:"location"`
	LastHeartbeat     *time.Time `json:"lastHeartbeat"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// CreateRequest holds the fields accepted when registering equipment.
type CreateRequest struct {
	Name            string     `json:"name"`
	CurrentStatusID string     `json:"currentStatusId"`
	Location        *string    `json:"location,omitempty"`
	LastHeartbeat   *time.Time `json:"lastHeartbeat,omitempty"`
}

// Patch is a partial update. Absent fields are left untouched; null clears
// a nullable field.
type Patch struct {
	Name            patch.Field[string]    `json:"name"`
	CurrentStatusID patch.Field[string]    `json:"currentStatusId"`
	Location        patch.Field[string]    `json:"location"`
	LastHeartbeat   patch.Field[time.Time] `json:"lastHeartbeat"`
}

// StatusLogEntry is one row of an equipment's append-only status history.
type StatusLogEntry struct {
	ID              string    `json:"id"`
	EquipmentID     string    `json:"equipmentId"`
	EquipmentName   string    `json:"equipmentName"`
	StatusID        string    `json:"statusId"`
	EquipmentStatus string    `json:"equipmentStatus"`
	Details         *string   `json:"details"`
	ReportedAt      time.Time `json:"reportedAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

// StatusView is the current status of one equipment.
type StatusView struct {
	EquipmentID       string     `json:"equipmentId"`
	CurrentStatusID   *string    `json:"currentStatusId"`
	CurrentStatusName *string    `json:"currentStatusName"`
	LastHeartbeat     *time.Time `json:"lastHeartbeat"`
}
