package buttplug

import (
	"encoding/json"
	"fmt"
)

// MessageVersion is the protocol version announced during the handshake.
const MessageVersion = 3

// Message type names as they appear on the wire. Each inbound or outbound
// payload is a JSON array of single-key objects keyed by one of these.
const (
	// Outbound.
	msgRequestServerInfo = "RequestServerInfo"
	msgStartScanning     = "StartScanning"
	msgStopScanning      = "StopScanning"
	msgRequestDeviceList = "RequestDeviceList"
	msgStopAllDevices    = "StopAllDevices"
	msgStopDeviceCmd     = "StopDeviceCmd"
	msgLinearCmd         = "LinearCmd"
	msgScalarCmd         = "ScalarCmd"
	msgRotateCmd         = "RotateCmd"
	msgPing              = "Ping"

	// Inbound.
	msgServerInfo       = "ServerInfo"
	msgDeviceList       = "DeviceList"
	msgDeviceAdded      = "DeviceAdded"
	msgDeviceRemoved    = "DeviceRemoved"
	msgScanningFinished = "ScanningFinished"
	msgOk               = "Ok"
	msgError            = "Error"
)

// Outbound message bodies. Every body carries the connection-scoped,
// strictly increasing message id.

type requestServerInfoBody struct {
	ID             uint32 `json:"Id"`
	ClientName     string `json:"ClientName"`
	MessageVersion int    `json:"MessageVersion"`
}

type idOnlyBody struct {
	ID uint32 `json:"Id"`
}

type stopDeviceBody struct {
	ID          uint32 `json:"Id"`
	DeviceIndex int    `json:"DeviceIndex"`
}

type vector struct {
	Index    int     `json:"Index"`
	Duration int     `json:"Duration"`
	Position float64 `json:"Position"`
}

type linearCmdBody struct {
	ID          uint32   `json:"Id"`
	DeviceIndex int      `json:"DeviceIndex"`
	Vectors     []vector `json:"Vectors"`
}

type scalar struct {
	Index        int     `json:"Index"`
	Scalar       float64 `json:"Scalar"`
	ActuatorType string  `json:"ActuatorType"`
}

type scalarCmdBody struct {
	ID          uint32   `json:"Id"`
	DeviceIndex int      `json:"DeviceIndex"`
	Scalars     []scalar `json:"Scalars"`
}

type rotation struct {
	Index     int     `json:"Index"`
	Speed     float64 `json:"Speed"`
	Clockwise bool    `json:"Clockwise"`
}

type rotateCmdBody struct {
	ID          uint32     `json:"Id"`
	DeviceIndex int        `json:"DeviceIndex"`
	Rotations   []rotation `json:"Rotations"`
}

// encodeMessage wraps one message body in the envelope format: a JSON array
// holding a single object keyed by the message-type name.
func encodeMessage(name string, body any) (string, error) {
	data, err := json.Marshal([]map[string]any{{name: body}})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	return string(data), nil
}

// clamp01 clamps a command value to the [0,1] range the protocol expects.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
