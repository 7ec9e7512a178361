// Package channel implements the client side of the backend's real-time
// event channel: a WebSocket connection carrying JSON event envelopes, and
// the Manager that keeps at most one such connection open per process.
//
// Each Conn runs a read pump that dispatches incoming events to registered
// handlers and a write pump that serializes outgoing events and keeps the
// connection alive with pings.
package channel
