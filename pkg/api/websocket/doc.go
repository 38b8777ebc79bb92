// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/graphs/:id/ws to receive real-time
// updates about graph execution.
package websocket
