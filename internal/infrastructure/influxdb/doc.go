// Package influxdb exports equipment activity to InfluxDB v2.
//
// Two measurements are written:
//
//	equipment_status  tags: equipment_id, status        fields: value=1
//	command           tags: equipment_id, command_type  fields: payload_bytes
//
// Writes go through the non-blocking batched write API, so a slow or
// unreachable server never blocks the ingest path. Async write errors are
// delivered to the callback set with SetOnError.
package influxdb
