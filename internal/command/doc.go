// Package command records control commands and publishes them to devices.
//
// A command row is a historical fact: it is written before the publish and
// kept even when every publish attempt fails.
//
// Wire format on equipments/{id}/commands:
//
//	{"commandType": "Start", "payload": "speed=3"}
package command
