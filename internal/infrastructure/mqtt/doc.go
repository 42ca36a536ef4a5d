// Package mqtt connects the bridge to an MQTT broker.
//
// The broker is an optional second surface next to the WebSocket server:
// frames broadcast to WebSocket clients are mirrored to <prefix>/events,
// commands published to <prefix>/command are executed as if a client had
// sent them, and the retained <prefix>/system/status topic tracks whether
// the bridge is online (with a Last Will for crashes).
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.Command(), 1, func(topic string, payload []byte) error {
//	    return nil
//	})
//
// TLS should be enabled (cfg.Broker.TLS) whenever the broker is not on
// the local host.
package mqtt
