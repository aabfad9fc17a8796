package main

import (
	"time"

	"github.com/nerrad567/equipctl/internal/equipment"
)

// transitionWriter is the time-series sink for status transitions.
// *influxdb.Client satisfies it.
type transitionWriter interface {
	WriteStatusTransition(equipmentID, status string, at time.Time)
}

// statusFanout forwards status history events to the WebSocket hub and,
// when series is non-nil, to the time-series store.
type statusFanout struct {
	next   equipment.Observer
	series transitionWriter
}

var _ equipment.Observer = (*statusFanout)(nil)

func newStatusFanout(next equipment.Observer, series transitionWriter) *statusFanout {
	return &statusFanout{next: next, series: series}
}

func (f *statusFanout) StatusChanged(entry equipment.StatusLogEntry) {
	f.next.StatusChanged(entry)
	if f.series != nil {
		f.series.WriteStatusTransition(entry.EquipmentID, entry.EquipmentStatus, entry.ReportedAt)
	}
}

func (f *statusFanout) FeedbackAttached(entry equipment.StatusLogEntry) {
	f.next.FeedbackAttached(entry)
}
