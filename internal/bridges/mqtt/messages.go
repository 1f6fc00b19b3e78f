package mqttbridge

import (
	"time"
)

// MQTT message types exchanged between VAMLaunch and external clients.

// DeviceListMessage is the retained snapshot of connected devices.
// Topic: {prefix}/devices
// QoS: 1, Retained: Yes
type DeviceListMessage struct {
	// Timestamp is when the snapshot was taken (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Devices lists every device currently registered with the server.
	Devices []DeviceInfo `json:"devices"`
}

// DeviceInfo describes one connected device.
type DeviceInfo struct {
	// Index is the server-assigned device index.
	Index int `json:"index"`

	// Name is the device label shown to users.
	Name string `json:"name"`

	// Features lists controllable features grouped by command family.
	Features FeatureSet `json:"features"`
}

// FeatureSet groups a device's features by the command family that drives
// them.
type FeatureSet struct {
	Linear []FeatureInfo `json:"linear,omitempty"`
	Scalar []FeatureInfo `json:"scalar,omitempty"`
	Rotate []FeatureInfo `json:"rotate,omitempty"`
}

// FeatureInfo describes a single controllable feature.
type FeatureInfo struct {
	Index      int    `json:"index"`
	Descriptor string `json:"descriptor,omitempty"`
	Actuator   string `json:"actuator,omitempty"`
	StepCount  int    `json:"step_count"`
}

// StatusMessage reports the client's connection status.
// Topic: {prefix}/status (retained when published by the bridge)
type StatusMessage struct {
	// Timestamp is when the status was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status is the connection state (disconnected, connecting,
	// handshaking, ready, error).
	Status string `json:"status"`

	// Detail is a human-readable status description.
	Detail string `json:"detail,omitempty"`
}

// EventMessage reports a notable client event.
// Topic: {prefix}/event
type EventMessage struct {
	// EventID uniquely identifies this event.
	EventID string `json:"event_id"`

	// Timestamp is when the event occurred (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Kind classifies the event (connection, device, command, error).
	Kind string `json:"kind"`

	// Detail is a human-readable event description.
	Detail string `json:"detail"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was sent to the device server.
	AckAccepted AckStatus = "accepted"

	// AckRejected indicates the command was malformed or referenced an
	// unknown device.
	AckRejected AckStatus = "rejected"

	// AckDropped indicates the client was not connected when the command
	// was due to run.
	AckDropped AckStatus = "dropped"
)

// AckMessage acknowledges an inbound command.
// Topic: {prefix}/ack/{command_id}
type AckMessage struct {
	// CommandID is the id from the original command, generated by the
	// bridge when the payload omitted one.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgement was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the acknowledgement status.
	Status AckStatus `json:"status"`

	// Error contains details when status is not "accepted".
	Error string `json:"error,omitempty"`
}

// Command actions accepted on {prefix}/command/{index}/{action} topics.
const (
	ActionLinear    = "linear"
	ActionScalar    = "scalar"
	ActionRotate    = "rotate"
	ActionStop      = "stop"
	ActionStopAll   = "stop_all"
	ActionScanStart = "scan_start"
	ActionScanStop  = "scan_stop"
)

// Command is a parsed inbound command, ready for the run loop to apply to
// the protocol client.
type Command struct {
	// ID is the correlation id used for the acknowledgement topic.
	ID string

	// Action is one of the Action constants.
	Action string

	// DeviceIndex is the target device, or -1 for stop-all and scan
	// commands.
	DeviceIndex int

	// DurationMs and Position apply to linear commands.
	DurationMs int
	Position   float64

	// Value and Actuator apply to scalar commands.
	Value    float64
	Actuator string

	// Speed and Clockwise apply to rotate commands.
	Speed     float64
	Clockwise bool
}

// Inbound payload shapes. All fields are optional; the bridge applies
// defaults and the protocol client clamps ranges.

type linearPayload struct {
	ID         string  `json:"id"`
	DurationMs int     `json:"duration_ms"`
	Position   float64 `json:"position"`
}

type scalarPayload struct {
	ID       string  `json:"id"`
	Value    float64 `json:"value"`
	Actuator string  `json:"actuator"`
}

type rotatePayload struct {
	ID        string  `json:"id"`
	Speed     float64 `json:"speed"`
	Clockwise bool    `json:"clockwise"`
}

type stopPayload struct {
	ID string `json:"id"`
}

type scanPayload struct {
	ID   string `json:"id"`
	Scan string `json:"scan"`
}
