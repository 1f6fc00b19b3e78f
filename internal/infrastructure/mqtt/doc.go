// Package mqtt provides MQTT client connectivity for VAMLaunch.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// VAMLaunch exposes the device-server session over MQTT so external
// automations and dashboards can observe connected devices and issue
// commands without speaking the device-server protocol themselves.
//
//	External clients ↔ MQTT Broker ↔ VAMLaunch ↔ Device server
//
// # Security Considerations
//
//   - TLS is required for non-local deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all inbound commands
//	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
//	err = client.Subscribe(topics.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish the retained device list
//	client.PublishRetained(topics.Devices(), deviceListJSON)
package mqtt
