package mqttbridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FrostySource/VAMLaunch/internal/buttplug"
	infra "github.com/FrostySource/VAMLaunch/internal/infrastructure/mqtt"
)

// commandTopicParts is the expected number of segments after the command
// prefix: {index}/{action}.
const commandTopicParts = 2

// MQTTClient is the broker connection the bridge publishes and subscribes
// through. Satisfied by *infra.Client; abstracted for tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler infra.MessageHandler) error
	IsConnected() bool
}

// Logger is the optional logging interface used by the bridge.
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

// Bridge exposes the device-server session over MQTT.
//
// Outbound: retained device list and status, plus events and errors.
// Inbound: device commands on {prefix}/command/{index}/{action} and scan
// control on {prefix}/command/scan.
//
// Inbound commands arrive on broker goroutines but the protocol client is
// single-threaded, so the bridge only parses and queues them. The run loop
// drains the queue with NextCommand on its own tick and acknowledges each
// command with Ack.
type Bridge struct {
	mqtt   MQTTClient
	topics infra.Topics
	qos    byte

	pending []Command
	mu      sync.Mutex

	logger Logger
}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTTClient is the broker connection. Required.
	MQTTClient MQTTClient

	// TopicPrefix is the leading topic segment. Empty means the default.
	TopicPrefix string

	// QoS is the quality-of-service level for bridge traffic.
	QoS byte

	// Logger is an optional structured logger.
	Logger Logger
}

// New creates a bridge. Call Start to subscribe to command topics.
func New(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Bridge{
		mqtt:   opts.MQTTClient,
		topics: infra.Topics{Prefix: opts.TopicPrefix},
		qos:    opts.QoS,
		logger: logger,
	}, nil
}

// Start subscribes to all inbound command topics.
func (b *Bridge) Start() error {
	topic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)
	return nil
}

// NextCommand pops the oldest queued command. Returns false when the queue
// is empty. Called from the run loop.
func (b *Bridge) NextCommand() (Command, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return Command{}, false
	}
	cmd := b.pending[0]
	b.pending = b.pending[1:]
	return cmd, true
}

// handleCommand parses one inbound command message and queues it.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	cmd, err := b.parseCommand(topic, payload)
	if err != nil {
		b.logger.Warn("rejected command", "topic", topic, "error", err)
		if cmd.ID != "" {
			b.ack(cmd.ID, AckRejected, err.Error())
		}
		return err
	}

	b.mu.Lock()
	b.pending = append(b.pending, cmd)
	b.mu.Unlock()

	b.logger.Debug("queued command", "action", cmd.Action, "device", cmd.DeviceIndex, "id", cmd.ID)
	return nil
}

// parseCommand maps a topic and payload onto a Command. The returned
// Command carries the correlation id even on error so a rejection can be
// acknowledged.
func (b *Bridge) parseCommand(topic string, payload []byte) (Command, error) {
	rest := strings.TrimPrefix(topic, b.topics.ScanCommand())
	if rest == "" {
		return b.parseScanCommand(payload)
	}

	prefix := strings.TrimSuffix(b.topics.AllCommands(), "#")
	rest = strings.TrimPrefix(topic, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != commandTopicParts {
		return Command{}, fmt.Errorf("malformed command topic %q", topic)
	}

	action := parts[1]
	cmd := Command{Action: action, DeviceIndex: -1}

	if parts[0] == "all" {
		if action != ActionStop {
			return cmd, fmt.Errorf("device \"all\" only supports stop, got %q", action)
		}
		cmd.Action = ActionStopAll
		var body stopPayload
		decodeLenient(payload, &body)
		cmd.ID = orGeneratedID(body.ID)
		return cmd, nil
	}

	index, err := strconv.Atoi(parts[0])
	if err != nil || index < 0 {
		return cmd, fmt.Errorf("invalid device index %q", parts[0])
	}
	cmd.DeviceIndex = index

	switch action {
	case ActionLinear:
		var body linearPayload
		decodeLenient(payload, &body)
		cmd.ID = orGeneratedID(body.ID)
		cmd.DurationMs = body.DurationMs
		cmd.Position = body.Position

	case ActionScalar:
		var body scalarPayload
		decodeLenient(payload, &body)
		cmd.ID = orGeneratedID(body.ID)
		cmd.Value = body.Value
		cmd.Actuator = body.Actuator

	case ActionRotate:
		var body rotatePayload
		decodeLenient(payload, &body)
		cmd.ID = orGeneratedID(body.ID)
		cmd.Speed = body.Speed
		cmd.Clockwise = body.Clockwise

	case ActionStop:
		var body stopPayload
		decodeLenient(payload, &body)
		cmd.ID = orGeneratedID(body.ID)

	default:
		return cmd, fmt.Errorf("unknown command action %q", action)
	}

	return cmd, nil
}

// parseScanCommand handles {prefix}/command/scan messages.
func (b *Bridge) parseScanCommand(payload []byte) (Command, error) {
	var body scanPayload
	decodeLenient(payload, &body)

	cmd := Command{ID: orGeneratedID(body.ID), DeviceIndex: -1}
	switch body.Scan {
	case "start", "":
		cmd.Action = ActionScanStart
	case "stop":
		cmd.Action = ActionScanStop
	default:
		return cmd, fmt.Errorf("unknown scan directive %q", body.Scan)
	}
	return cmd, nil
}

// Ack publishes the acknowledgement for a drained command.
func (b *Bridge) Ack(cmd Command, status AckStatus, errMsg string) {
	b.ack(cmd.ID, status, errMsg)
}

func (b *Bridge) ack(commandID string, status AckStatus, errMsg string) {
	msg := AckMessage{
		CommandID: commandID,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     errMsg,
	}
	b.publishJSON(b.topics.Ack(commandID), msg, false)
}

// PublishDevices publishes the retained device-list snapshot.
func (b *Bridge) PublishDevices(devices []buttplug.Device) {
	msg := DeviceListMessage{
		Timestamp: time.Now().UTC(),
		Devices:   make([]DeviceInfo, 0, len(devices)),
	}
	for _, d := range devices {
		msg.Devices = append(msg.Devices, DeviceInfo{
			Index: d.Index,
			Name:  d.Label(),
			Features: FeatureSet{
				Linear: featureInfos(d.Linear),
				Scalar: featureInfos(d.Scalar),
				Rotate: featureInfos(d.Rotate),
			},
		})
	}
	b.publishJSON(b.topics.Devices(), msg, true)
}

// PublishStatus publishes the retained connection status.
func (b *Bridge) PublishStatus(status, detail string) {
	msg := StatusMessage{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Detail:    detail,
	}
	b.publishJSON(b.topics.Status(), msg, true)
}

// PublishEvent publishes a client event.
func (b *Bridge) PublishEvent(kind, detail string) {
	msg := EventMessage{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Detail:    detail,
	}
	b.publishJSON(b.topics.Event(), msg, false)
}

// PublishError publishes a transport or protocol error.
func (b *Bridge) PublishError(detail string) {
	msg := EventMessage{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      "error",
		Detail:    detail,
	}
	b.publishJSON(b.topics.Error(), msg, false)
}

// publishJSON marshals and publishes one message. Broker outages are
// logged, not propagated; retained topics are republished on the next
// change anyway.
func (b *Bridge) publishJSON(topic string, msg any, retained bool) {
	if !b.mqtt.IsConnected() {
		b.logger.Debug("broker not connected, dropping publish", "topic", topic)
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("message marshal failed", "topic", topic, "error", err)
		return
	}

	if err := b.mqtt.Publish(topic, payload, b.qos, retained); err != nil {
		b.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

func featureInfos(features []buttplug.Feature) []FeatureInfo {
	if len(features) == 0 {
		return nil
	}
	infos := make([]FeatureInfo, 0, len(features))
	for _, f := range features {
		infos = append(infos, FeatureInfo{
			Index:      f.Index,
			Descriptor: f.Descriptor,
			Actuator:   f.Actuator,
			StepCount:  f.StepCount,
		})
	}
	return infos
}

// decodeLenient unmarshals a payload, tolerating empty or malformed bodies.
// Commands with empty bodies run with zero-value parameters.
func decodeLenient(payload []byte, v any) {
	if len(payload) == 0 {
		return
	}
	_ = json.Unmarshal(payload, v)
}

func orGeneratedID(id string) string {
	if id != "" {
		return id
	}
	return "cmd-" + uuid.NewString()
}
