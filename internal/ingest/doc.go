// Package ingest consumes device messages from MQTT.
//
// Every message for one equipment id is handled by a single worker
// goroutine in arrival order, so a status report is always applied before
// the feedback that follows it. Workers for different ids run concurrently
// and exit after an idle period. The MQTT callback only enqueues.
//
// Subscriptions:
//
//	equipments/+/status    {"status": "Occupied"}
//	equipments/+/feedback  {"message": "..."}
//	equipments/+/commands  {"commandType": "Start", "payload": "..."}
//
// Commands are answered by the built-in Simulator when it is enabled.
package ingest
