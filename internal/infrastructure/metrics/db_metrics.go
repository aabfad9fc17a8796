package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "equipments",
			Help: "Registered equipment",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM equipments")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "equipments_occupied",
			Help: "Equipment whose current status is Occupied",
		},
		func() float64 {
			return queryCount(db, logger, `
				SELECT COUNT(*) FROM equipments e
				JOIN equipment_statuses s ON s.id = e.current_status_id
				WHERE s.name = 'Occupied'`)
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "reservations_active",
			Help: "Reservations in the Active status",
		},
		func() float64 {
			return queryCount(db, logger, `
				SELECT COUNT(*) FROM reservations r
				JOIN reservation_statuses s ON s.id = r.status_id
				WHERE s.name = 'Active'`)
		},
	))
}

func queryCount(db *sql.DB, logger Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Warn("metrics query failed", "error", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
