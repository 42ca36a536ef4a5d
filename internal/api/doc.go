// Package api serves the bridge to browsers and tooling.
//
// This package provides:
//   - The WebSocket endpoint (default "/") where each connection becomes a
//     hub session speaking the line protocol
//   - Read-only REST endpoints under /api/v1 for health, metrics, the
//     user list, available serial ports and the activity journal
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support when configured
//
// There is no authentication: the listener defaults to localhost and
// operators who expose it are expected to front it with a proxy.
package api
