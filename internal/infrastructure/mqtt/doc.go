// Package mqtt connects equipctl to the broker that carries device traffic.
//
// Topic layout:
//
//	equipments/{equipmentId}/commands   core -> device  {commandType, payload}
//	equipments/{equipmentId}/status     device -> core  {status}
//	equipments/{equipmentId}/feedback   device -> core  {message}
//	equipctl/system/status              retained presence and LWT
//
// Client wraps paho with reconnect-safe subscriptions and panic-safe
// handlers. RetryPublisher adds bounded exponential backoff on top of
// Client.Publish for steady-state publishes.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	pub := mqtt.NewRetryPublisher(client, client.QoS(), cfg.MQTT.PublishRetry)
//	err = pub.Publish(ctx, mqtt.Topics{}.EquipmentCommands(id), body)
package mqtt
