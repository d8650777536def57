// Package influxdb writes the node's connectivity telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Points recorded:
//   - heartbeat: publish result and latency
//   - connect_attempt: WiFi and broker attempts with their outcome
//   - link_state: WiFi/broker booleans as the agent saw them
//   - inbound_message: topic and size of each received message
//
// Every point is tagged with the node's thing name.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.ThingName)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteHeartbeat(true, 12*time.Millisecond)
//
// Writes are non-blocking and batched (batch_size, flush_interval). Write
// errors are delivered to the SetOnError callback.
package influxdb
