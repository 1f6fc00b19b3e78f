package ws

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// WebSocket opcodes (RFC 6455 §5.2). Only the subset the protocol uses.
const (
	opContinuation byte = 0x0
	opText         byte = 0x1
	opBinary       byte = 0x2
	opClose        byte = 0x8
	opPing         byte = 0x9
	opPong         byte = 0xA
)

const (
	finBit  byte = 0x80
	maskBit byte = 0x80
)

// Payload length tiers. Lengths up to 125 are encoded inline in the second
// header byte; 126 and 127 select the 16-bit and 64-bit extended fields.
const (
	maxInlineLen  = 125
	len16Marker   = 126
	len64Marker   = 127
	maxExtended16 = 65535
)

// frame is one decoded WebSocket frame.
type frame struct {
	fin     bool
	opcode  byte
	payload []byte
}

// newMaskKey returns a fresh random 4-byte masking key for one client frame.
func newMaskKey() [4]byte {
	var key [4]byte
	// rand.Read on the system source does not fail in practice; a zero key
	// still produces a valid (identity-masked) frame.
	_, _ = rand.Read(key[:])
	return key
}

// maskPayload XORs the payload in place with key[i%4]. Masking is its own
// inverse, so the same call unmasks.
func maskPayload(payload []byte, key [4]byte) {
	for i := range payload {
		payload[i] ^= key[i%4]
	}
}

// encodeClientFrame builds a complete masked client frame: FIN set, the
// given opcode, the three-tier length encoding and a copy of the payload
// XORed with the mask key. The input payload is not modified.
func encodeClientFrame(opcode byte, payload []byte, key [4]byte) []byte {
	headerLen := 2
	switch {
	case len(payload) > maxExtended16:
		headerLen += 8
	case len(payload) > maxInlineLen:
		headerLen += 2
	}
	headerLen += 4 // mask key

	buf := make([]byte, headerLen+len(payload))
	buf[0] = finBit | opcode

	pos := 2
	switch {
	case len(payload) > maxExtended16:
		buf[1] = maskBit | len64Marker
		binary.BigEndian.PutUint64(buf[2:10], uint64(len(payload)))
		pos = 10
	case len(payload) > maxInlineLen:
		buf[1] = maskBit | len16Marker
		binary.BigEndian.PutUint16(buf[2:4], uint16(len(payload)))
		pos = 4
	default:
		buf[1] = maskBit | byte(len(payload))
	}

	copy(buf[pos:pos+4], key[:])
	pos += 4

	copy(buf[pos:], payload)
	maskPayload(buf[pos:], key)

	return buf
}

// readFrame reads exactly one frame from the stream: the 2-byte header,
// conditional extended length, conditional mask key, then the payload,
// unmasking if a mask key was present. Server frames arrive unmasked per the
// protocol convention, but a masked frame is handled for completeness.
func readFrame(r io.Reader) (frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return frame{}, fmt.Errorf("read frame header: %w", err)
	}

	f := frame{
		fin:    hdr[0]&finBit != 0,
		opcode: hdr[0] & 0x0F,
	}
	masked := hdr[1]&maskBit != 0
	payloadLen := uint64(hdr[1] & 0x7F)

	switch payloadLen {
	case len16Marker:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return frame{}, fmt.Errorf("read extended length: %w", err)
		}
		payloadLen = uint64(binary.BigEndian.Uint16(ext[:]))
	case len64Marker:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return frame{}, fmt.Errorf("read extended length: %w", err)
		}
		payloadLen = binary.BigEndian.Uint64(ext[:])
	}

	var key [4]byte
	if masked {
		if _, err := io.ReadFull(r, key[:]); err != nil {
			return frame{}, fmt.Errorf("read mask key: %w", err)
		}
	}

	f.payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(r, f.payload); err != nil {
		return frame{}, fmt.Errorf("read payload: %w", err)
	}

	if masked {
		maskPayload(f.payload, key)
	}

	return f, nil
}
