// Package mqtt provides the node's MQTT session with a cloud IoT broker.
//
// This package manages:
//   - Mutual-TLS configuration from CA, client certificate and key
//   - Single-attempt connects (the agent owns the retry budget)
//   - Message publishing with QoS validation
//   - Topic subscriptions, restored on every reconnect
//   - Optional status topic with Last Will and Testament
//
// # Security Considerations
//
//   - TLS is on by default (port 8883); the broker authenticates the
//     node by its client certificate
//   - Private keys should come from a 0600 file or HOLTER_MQTT_KEY_PEM,
//     never from the YAML file checked into a repository
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    // count the attempt and retry
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().Inbound(), 0,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.PublishString(client.Topics().Heartbeat(), `{"message": "Hello from ESP32"}`, 0, false)
//
// The mqtttest subpackage runs an in-process broker for tests.
package mqtt
