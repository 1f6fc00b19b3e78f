// Package buttplug implements the client side of the haptics server's
// JSON message protocol.
//
// A Client owns a ws.Transport and drives the whole session: the protocol
// handshake, device discovery, the server-negotiated keepalive schedule and
// outbound command encoding. Inbound messages maintain a registry of
// devices, each exposing the actuator features it supports (linear, scalar,
// rotate) and derived capability predicates.
//
// The client is tick-driven: the caller invokes Update once per tick from a
// single goroutine, which drains the transport's polled queues, updates the
// registry and emits keepalive pings when due. Device commands are
// fire-and-forget sends that no-op while disconnected. Notification hooks
// (devices-changed, status-changed, error) fire from the tick context.
package buttplug
