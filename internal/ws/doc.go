// Package ws implements the minimal WebSocket client transport used to reach
// the haptics server.
//
// This is not a general-purpose WebSocket implementation. It covers exactly
// the subset the protocol needs: the HTTP/1.1 upgrade handshake, single
// unfragmented text frames (client frames always masked), ping/pong and
// close. Fragmented messages are not reassembled; the protocol's servers
// send complete messages in single frames.
//
// A Transport owns one stream-socket connection. After Connect succeeds, a
// single background goroutine reads frames until disconnect and feeds two
// thread-safe polled queues (received messages and transport errors). The
// queues are drained non-blockingly by one consumer per tick; Send is safe
// to call from any goroutine.
package ws
