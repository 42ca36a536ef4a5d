// Package hub tracks connected client sessions and fans text frames out to
// them.
//
// A Session is anything that can accept a text frame: a WebSocket
// connection, the MQTT mirror, or a test double. Delivery is fire-and-forget
// per session. A session that has gone away or cannot keep up is logged and
// skipped, it never stalls delivery to the others.
package hub
