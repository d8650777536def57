package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementHeartbeat = "heartbeat"
	measurementConnect   = "connect_attempt"
	measurementLink      = "link_state"
	measurementInbound   = "inbound_message"
)

// Connect targets for WriteConnectAttempt.
const (
	TargetWiFi   = "wifi"
	TargetBroker = "broker"
)

// WriteHeartbeat records one heartbeat publish and how long it took.
func (c *Client) WriteHeartbeat(ok bool, latency time.Duration) {
	c.writePoint(measurementHeartbeat,
		map[string]string{"result": result(ok)},
		map[string]any{
			"ok":         ok,
			"latency_ms": float64(latency) / float64(time.Millisecond),
		},
	)
}

// WriteConnectAttempt records one WiFi or broker connect attempt.
func (c *Client) WriteConnectAttempt(target string, attempt int, ok bool) {
	c.writePoint(measurementConnect,
		map[string]string{"target": target, "result": result(ok)},
		map[string]any{"attempt": attempt, "ok": ok},
	)
}

// WriteLinkState records the connection booleans the agent observed.
func (c *Client) WriteLinkState(wifi, broker bool) {
	c.writePoint(measurementLink, nil, map[string]any{"wifi": wifi, "broker": broker})
}

// WriteInbound records a received message's topic and size.
func (c *Client) WriteInbound(topic string, size int) {
	c.writePoint(measurementInbound,
		map[string]string{"topic": topic},
		map[string]any{"bytes": size},
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
