// Package mqttbridge exposes the device-server session over MQTT.
//
// The bridge publishes a retained device list and connection status so
// external automations and dashboards always see current state, and accepts
// device commands on {prefix}/command topics without those clients having
// to speak the device-server protocol themselves.
//
// Inbound commands are parsed on broker goroutines but only queued there;
// the run loop drains the queue on its own tick, applies each command to
// the protocol client, and acknowledges it on {prefix}/ack/{command_id}.
package mqttbridge
