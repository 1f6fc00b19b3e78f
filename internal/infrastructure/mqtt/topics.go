package mqtt

import "fmt"

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "vamlaunch"

// Topics builds VAMLaunch MQTT topic names. Using these helpers keeps topic
// naming consistent between the bridge and external subscribers.
//
// The topic hierarchy is:
//
//	{prefix}/status                     bridge online/offline (retained)
//	{prefix}/devices                    connected device list (retained)
//	{prefix}/event                      client events (device changes, status)
//	{prefix}/error                      transport and protocol errors
//	{prefix}/command/{index}/{action}   inbound device commands
//	{prefix}/command/scan               inbound scan control
//	{prefix}/ack/{command_id}           command acknowledgements
type Topics struct {
	// Prefix is the leading topic segment. Empty means DefaultTopicPrefix.
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Status returns the bridge status topic. Retained; also used as the LWT
// topic so subscribers see "offline" after a crash.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.prefix())
}

// Devices returns the retained device-list topic.
func (t Topics) Devices() string {
	return fmt.Sprintf("%s/devices", t.prefix())
}

// Event returns the client event topic.
func (t Topics) Event() string {
	return fmt.Sprintf("%s/event", t.prefix())
}

// Error returns the error topic.
func (t Topics) Error() string {
	return fmt.Sprintf("%s/error", t.prefix())
}

// DeviceCommand returns the command topic for one device action.
//
// Example: vamlaunch/command/0/linear
func (t Topics) DeviceCommand(deviceIndex int, action string) string {
	return fmt.Sprintf("%s/command/%d/%s", t.prefix(), deviceIndex, action)
}

// ScanCommand returns the scan control topic.
func (t Topics) ScanCommand() string {
	return fmt.Sprintf("%s/command/scan", t.prefix())
}

// Ack returns the acknowledgement topic for a command id.
func (t Topics) Ack(commandID string) string {
	return fmt.Sprintf("%s/ack/%s", t.prefix(), commandID)
}

// AllCommands returns a pattern matching every inbound command topic,
// including scan control.
//
// Pattern: {prefix}/command/#
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/#", t.prefix())
}
