package buttplug

import (
	"fmt"
	"strings"
	"time"

	"github.com/FrostySource/VAMLaunch/internal/jsonval"
	"github.com/FrostySource/VAMLaunch/internal/ws"
)

// keepaliveRatio is the fraction of the server-advertised maximum silence
// tolerance at which the client sends keepalive pings.
const keepaliveRatio = 0.4

// Status is the connection state of the client.
type Status int

// Client connection states.
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusHandshaking
	StatusReady
	StatusError
)

// String returns the status name for logs and status callbacks.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusHandshaking:
		return "handshaking"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is the optional logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport is the connection the client drives. Satisfied by ws.Transport;
// abstracted for testability.
type Transport interface {
	Connect(host string, port int, path string) error
	Send(text string) error
	Close()
	NextMessage() (string, bool)
	NextError() (error, bool)
	IsConnected() bool
}

// Ensure the real transport satisfies the interface.
var _ Transport = (*ws.Transport)(nil)

// Client is the protocol client state machine.
//
// Thread Safety:
//   - Connect, Disconnect, Update and all command methods must be called
//     from a single goroutine (the tick context). The transport handles the
//     concurrency between that context and its background reader.
//   - Notification callbacks fire synchronously from the tick context.
type Client struct {
	transport  Transport
	clientName string
	path       string

	status        Status
	handshakeDone bool
	nextID        uint32

	pingInterval  time.Duration // zero means keepalive disabled
	pingCountdown time.Duration

	devices map[int]Device

	onDevicesChanged func()
	onStatusChanged  func(status Status, detail string)
	onError          func(msg string)

	logger Logger
}

// NewClient creates a client backed by the hand-rolled WebSocket transport.
// clientName is announced to the server during the protocol handshake.
func NewClient(clientName string) *Client {
	return NewClientWithTransport(clientName, ws.New())
}

// NewClientWithTransport creates a client on a caller-supplied transport.
func NewClientWithTransport(clientName string, tr Transport) *Client {
	return &Client{
		transport:  tr,
		clientName: clientName,
		path:       "/",
		devices:    make(map[int]Device),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetPath overrides the WebSocket endpoint path (default "/").
func (c *Client) SetPath(path string) {
	if path != "" {
		c.path = path
	}
}

// SetOnDevicesChanged registers the hook fired whenever the device registry
// changes (full rebuild, single add/replace, removal).
func (c *Client) SetOnDevicesChanged(fn func()) {
	c.onDevicesChanged = fn
}

// SetOnStatusChanged registers the hook fired on connection status changes
// and status reports.
func (c *Client) SetOnStatusChanged(fn func(status Status, detail string)) {
	c.onStatusChanged = fn
}

// SetOnError registers the hook fired for transport and protocol errors.
func (c *Client) SetOnError(fn func(msg string)) {
	c.onError = fn
}

// Connect resets per-connection state, opens the transport and sends the
// protocol handshake request. On transport failure the client stays
// disconnected and the error is returned; reconnection is entirely the
// caller's responsibility.
func (c *Client) Connect(host string, port int) error {
	c.nextID = 1
	c.pingInterval = 0
	c.pingCountdown = 0
	c.handshakeDone = false
	c.devices = make(map[int]Device)

	c.setStatus(StatusConnecting, fmt.Sprintf("connecting to %s:%d", host, port))

	if err := c.transport.Connect(host, port, c.path); err != nil {
		c.setStatus(StatusDisconnected, fmt.Sprintf("connect failed: %v", err))
		return fmt.Errorf("transport connect: %w", err)
	}

	c.sendMessage(msgRequestServerInfo, requestServerInfoBody{
		ID:             c.allocID(),
		ClientName:     c.clientName,
		MessageVersion: MessageVersion,
	})
	c.setStatus(StatusHandshaking, "awaiting server info")

	return nil
}

// Disconnect stops all devices (best-effort, only if the handshake had
// completed), closes the transport and clears the registry.
func (c *Client) Disconnect() {
	if c.handshakeDone {
		c.sendMessage(msgStopAllDevices, idOnlyBody{ID: c.allocID()})
	}

	c.transport.Close()

	c.handshakeDone = false
	c.pingInterval = 0
	if len(c.devices) > 0 {
		c.devices = make(map[int]Device)
		c.notifyDevicesChanged()
	}
	c.setStatus(StatusDisconnected, "disconnected")
}

// Update is the per-tick pump. elapsed is the time since the previous call
// and drives the keepalive countdown.
//
// Each tick it drains the transport error queue, detects unexpected
// disconnects, drains and dispatches every queued message, and sends a
// keepalive ping when due.
func (c *Client) Update(elapsed time.Duration) {
	for {
		err, ok := c.transport.NextError()
		if !ok {
			break
		}
		c.setStatus(StatusError, err.Error())
		c.reportError(err.Error())
	}

	if !c.transport.IsConnected() {
		if c.handshakeDone {
			// The reader noticed the drop before we did. Close releases
			// the dead socket and joins the reader; queued messages from
			// the lost session are not delivered.
			c.transport.Close()
			c.handshakeDone = false
			c.pingInterval = 0
			c.setStatus(StatusDisconnected, "connection to server lost")
			return
		}
		// Pre-handshake drop: deliver what arrived before the connection
		// went away, then wait for the caller to reconnect or give up.
		c.drainMessages()
		return
	}

	c.drainMessages()

	if c.handshakeDone && c.pingInterval > 0 {
		c.pingCountdown -= elapsed
		if c.pingCountdown <= 0 {
			c.sendMessage(msgPing, idOnlyBody{ID: c.allocID()})
			c.pingCountdown = c.pingInterval
		}
	}
}

// drainMessages dispatches every queued inbound message.
func (c *Client) drainMessages() {
	for {
		raw, ok := c.transport.NextMessage()
		if !ok {
			return
		}
		c.handleMessage(raw)
	}
}

// Devices returns a snapshot of the registry ordered by device index.
func (c *Client) Devices() []Device {
	return sortedDevices(c.devices)
}

// Device looks up one device by its server-assigned index.
func (c *Client) Device(index int) (Device, bool) {
	d, ok := c.devices[index]
	return d, ok
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	return c.status
}

// HandshakeComplete reports whether the server has acknowledged the
// protocol handshake on the current connection.
func (c *Client) HandshakeComplete() bool {
	return c.handshakeDone
}

// KeepaliveInterval returns the armed keepalive interval, zero when the
// server advertised no silence limit.
func (c *Client) KeepaliveInterval() time.Duration {
	return c.pingInterval
}

// Outbound commands. All are fire-and-forget and no-ops until the protocol
// handshake has completed.

// MoveLinear sends a single positional target: move the feature to position
// (clamped to [0,1]) over durationMs milliseconds (clamped to >= 0).
func (c *Client) MoveLinear(deviceIndex, featureIndex, durationMs int, position float64) {
	if !c.ready() {
		return
	}
	if durationMs < 0 {
		durationMs = 0
	}
	c.sendMessage(msgLinearCmd, linearCmdBody{
		ID:          c.allocID(),
		DeviceIndex: deviceIndex,
		Vectors: []vector{{
			Index:    featureIndex,
			Duration: durationMs,
			Position: clamp01(position),
		}},
	})
}

// ScalarValue drives a single scalar actuator (vibrate, constrict, ...) at
// value clamped to [0,1].
func (c *Client) ScalarValue(deviceIndex, featureIndex int, actuator string, value float64) {
	if !c.ready() {
		return
	}
	c.sendMessage(msgScalarCmd, scalarCmdBody{
		ID:          c.allocID(),
		DeviceIndex: deviceIndex,
		Scalars: []scalar{{
			Index:        featureIndex,
			Scalar:       clamp01(value),
			ActuatorType: actuator,
		}},
	})
}

// ScalarAll broadcasts the same clamped value to every supplied scalar
// feature, one entry per feature in the outgoing list.
func (c *Client) ScalarAll(deviceIndex int, features []Feature, value float64) {
	if !c.ready() || len(features) == 0 {
		return
	}
	scalars := make([]scalar, 0, len(features))
	for _, f := range features {
		scalars = append(scalars, scalar{
			Index:        f.Index,
			Scalar:       clamp01(value),
			ActuatorType: f.Actuator,
		})
	}
	c.sendMessage(msgScalarCmd, scalarCmdBody{
		ID:          c.allocID(),
		DeviceIndex: deviceIndex,
		Scalars:     scalars,
	})
}

// RotateSpeed drives a single rotate feature at speed clamped to [0,1] in
// the given spin direction.
func (c *Client) RotateSpeed(deviceIndex, featureIndex int, speed float64, clockwise bool) {
	if !c.ready() {
		return
	}
	c.sendMessage(msgRotateCmd, rotateCmdBody{
		ID:          c.allocID(),
		DeviceIndex: deviceIndex,
		Rotations: []rotation{{
			Index:     featureIndex,
			Speed:     clamp01(speed),
			Clockwise: clockwise,
		}},
	})
}

// RotateAll broadcasts the same clamped speed and direction to every
// supplied rotate feature.
func (c *Client) RotateAll(deviceIndex int, features []Feature, speed float64, clockwise bool) {
	if !c.ready() || len(features) == 0 {
		return
	}
	rotations := make([]rotation, 0, len(features))
	for _, f := range features {
		rotations = append(rotations, rotation{
			Index:     f.Index,
			Speed:     clamp01(speed),
			Clockwise: clockwise,
		})
	}
	c.sendMessage(msgRotateCmd, rotateCmdBody{
		ID:          c.allocID(),
		DeviceIndex: deviceIndex,
		Rotations:   rotations,
	})
}

// StopDevice stops all actuators on one device.
func (c *Client) StopDevice(deviceIndex int) {
	if !c.ready() {
		return
	}
	c.sendMessage(msgStopDeviceCmd, stopDeviceBody{ID: c.allocID(), DeviceIndex: deviceIndex})
}

// StopAllDevices stops every device on the server.
func (c *Client) StopAllDevices() {
	if !c.ready() {
		return
	}
	c.sendMessage(msgStopAllDevices, idOnlyBody{ID: c.allocID()})
}

// StartScanning asks the server to begin device discovery.
func (c *Client) StartScanning() {
	if !c.ready() {
		return
	}
	c.sendMessage(msgStartScanning, idOnlyBody{ID: c.allocID()})
}

// StopScanning asks the server to end device discovery.
func (c *Client) StopScanning() {
	if !c.ready() {
		return
	}
	c.sendMessage(msgStopScanning, idOnlyBody{ID: c.allocID()})
}

// RequestDeviceList asks the server for the full device list.
func (c *Client) RequestDeviceList() {
	if !c.ready() {
		return
	}
	c.sendMessage(msgRequestDeviceList, idOnlyBody{ID: c.allocID()})
}

// ready gates outbound commands on a live, handshaken connection.
func (c *Client) ready() bool {
	return c.handshakeDone && c.transport.IsConnected()
}

// allocID returns the next strictly increasing message id.
func (c *Client) allocID() uint32 {
	id := c.nextID
	c.nextID++
	return id
}

// sendMessage encodes and sends one message; failures are reported through
// the transport's error queue on the next tick, so they are only logged
// here.
func (c *Client) sendMessage(name string, body any) {
	text, err := encodeMessage(name, body)
	if err != nil {
		c.logger.Error("message encode failed", "type", name, "error", err)
		return
	}
	if err := c.transport.Send(text); err != nil {
		c.logger.Warn("message send failed", "type", name, "error", err)
	}
}

// handleMessage parses one raw buffer and dispatches each envelope element
// by its message-type key.
func (c *Client) handleMessage(raw string) {
	arr, ok := jsonval.AsArray(jsonval.Parse(raw))
	if !ok {
		// Lenient by design, but leave a trace for corrupt frames.
		c.logger.Debug("undecodable message buffer", "len", len(raw))
		return
	}

	for _, elem := range arr {
		obj, ok := jsonval.AsObject(elem)
		if !ok {
			continue
		}
		for name, body := range obj {
			bodyObj, _ := jsonval.AsObject(body)
			c.dispatch(name, bodyObj)
		}
	}
}

func (c *Client) dispatch(name string, body map[string]any) {
	switch name {
	case msgServerInfo:
		c.handleServerInfo(body)
	case msgDeviceList:
		c.handleDeviceList(body)
	case msgDeviceAdded:
		c.handleDeviceAdded(body)
	case msgDeviceRemoved:
		c.handleDeviceRemoved(body)
	case msgError:
		c.handleServerError(body)
	case msgOk, msgScanningFinished:
		// Acknowledged silently.
	default:
		c.logger.Debug("unrecognized message type", "type", name)
	}
}

// handleServerInfo completes the protocol handshake, arms the keepalive
// schedule at 40% of the server's silence tolerance and auto-triggers
// device discovery.
func (c *Client) handleServerInfo(body map[string]any) {
	c.handshakeDone = true

	maxPingMs, _ := jsonval.AsNumber(body["MaxPingTime"])
	if maxPingMs > 0 {
		c.pingInterval = time.Duration(maxPingMs * keepaliveRatio * float64(time.Millisecond))
		c.pingCountdown = c.pingInterval
	} else {
		c.pingInterval = 0
	}

	c.setStatus(StatusReady, "server handshake complete")
	c.logger.Info("handshake complete", "keepalive", c.pingInterval)

	c.sendMessage(msgRequestDeviceList, idOnlyBody{ID: c.allocID()})
	c.sendMessage(msgStartScanning, idOnlyBody{ID: c.allocID()})
}

// handleDeviceList rebuilds the registry wholesale from the payload.
func (c *Client) handleDeviceList(body map[string]any) {
	c.devices = make(map[int]Device)

	list, _ := jsonval.AsArray(body["Devices"])
	for _, entry := range list {
		obj, ok := jsonval.AsObject(entry)
		if !ok {
			continue
		}
		d := parseDeviceDescriptor(obj)
		c.devices[d.Index] = d
	}

	c.notifyDevicesChanged()
	c.setStatus(StatusReady, c.deviceSummary())
}

// handleDeviceAdded inserts or replaces a single device; an add for an
// existing index is last-write-wins.
func (c *Client) handleDeviceAdded(body map[string]any) {
	d := parseDeviceDescriptor(body)
	c.devices[d.Index] = d

	c.notifyDevicesChanged()
	c.setStatus(StatusReady, fmt.Sprintf("%d device(s) connected", len(c.devices)))
	c.logger.Info("device added", "index", d.Index, "name", d.Label())
}

func (c *Client) handleDeviceRemoved(body map[string]any) {
	idx, ok := jsonval.AsInt(body["DeviceIndex"])
	if ok {
		delete(c.devices, idx)
		c.logger.Info("device removed", "index", idx)
	}
	c.notifyDevicesChanged()
}

// handleServerError surfaces a protocol-level error without changing
// connection state.
func (c *Client) handleServerError(body map[string]any) {
	code, _ := jsonval.AsInt(body["ErrorCode"])
	msg, _ := jsonval.AsString(body["ErrorMessage"])
	c.reportError(fmt.Sprintf("%d: %s", code, msg))
}

// deviceSummary builds the human-readable registry report.
func (c *Client) deviceSummary() string {
	devices := sortedDevices(c.devices)
	if len(devices) == 0 {
		return "0 devices connected"
	}

	parts := make([]string, 0, len(devices))
	for _, d := range devices {
		parts = append(parts, d.summary())
	}
	return fmt.Sprintf("%d device(s): %s", len(devices), strings.Join(parts, ", "))
}

func (c *Client) setStatus(status Status, detail string) {
	c.status = status
	if c.onStatusChanged != nil {
		c.onStatusChanged(status, detail)
	}
}

func (c *Client) reportError(msg string) {
	c.logger.Error("client error", "detail", msg)
	if c.onError != nil {
		c.onError(msg)
	}
}

func (c *Client) notifyDevicesChanged() {
	if c.onDevicesChanged != nil {
		c.onDevicesChanged()
	}
}
