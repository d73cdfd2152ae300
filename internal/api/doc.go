// Package api serves a controller over HTTP and WebSocket.
//
// This package provides:
//   - the /api/v1 routes other controllers and clients call (version,
//     device resolution, client registration, power dialogs, sequencing,
//     the log ring, exported object invocation)
//   - a WebSocket hub whose connections are registered as "ws:" clients
//     and receive broadcast calls as event frames
//   - a relay of bridge state messages from MQTT to subscribed WebSocket clients
//   - the middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Errors
//
// Every failure is written as {"status","code","message"}. Codes are the
// remote.Code* constants, so remote.ControllerClient maps them back to the
// same sentinel errors on the calling side.
//
// # Graceful Degradation
//
// MQTT and the audit store are optional. Without MQTT the state relay is
// off; without the audit store GET /audit answers 503.
package api
