package journal

import (
	"context"
	"errors"
	"time"
)

// ErrNoBoot is returned when recording before StartBoot.
var ErrNoBoot = errors.New("journal: no boot started")

// EventKind names a lifecycle event.
type EventKind string

// Lifecycle events.
const (
	EventWiFiConnected       EventKind = "wifi_connected"
	EventWiFiLost            EventKind = "wifi_lost"
	EventBrokerConnected     EventKind = "broker_connected"
	EventBrokerConnectFailed EventKind = "broker_connect_failed"
	EventBrokerLost          EventKind = "broker_lost"
	EventHeartbeatFailed     EventKind = "heartbeat_failed"
	EventInboundDropped      EventKind = "inbound_dropped"
	EventRestartRequested    EventKind = "restart_requested"
	EventShutdown            EventKind = "shutdown"
)

// Direction of a journaled message relative to the node.
type Direction string

// Message directions.
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Boot is one process lifetime.
type Boot struct {
	ID        string     `json:"id"`
	ThingName string     `json:"thing_name"`
	Version   string     `json:"version"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// Event is a journaled lifecycle event.
type Event struct {
	ID        int64     `json:"id"`
	BootID    string    `json:"boot_id"`
	Kind      EventKind `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a journaled MQTT message.
type Message struct {
	ID        int64     `json:"id"`
	BootID    string    `json:"boot_id"`
	Direction Direction `json:"direction"`
	Topic     string    `json:"topic"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows List queries. Results are newest first.
type Filter struct {
	BootID string    // optional: only this boot
	Kind   EventKind // optional: events only
	Limit  int       // default 50, max 500
}

// Limits for List queries.
const (
	defaultLimit = 50
	maxLimit     = 500
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultLimit
	case f.Limit > maxLimit:
		return maxLimit
	default:
		return f.Limit
	}
}

// Repository defines journal operations.
type Repository interface {
	StartBoot(ctx context.Context, thingName, version string) (Boot, error)
	EndBoot(ctx context.Context, reason string) error
	BootID() string
	RecordEvent(ctx context.Context, kind EventKind, detail string, attempt int) error
	RecordMessage(ctx context.Context, dir Direction, topic string, payload []byte) error
	ListBoots(ctx context.Context, limit int) ([]Boot, error)
	ListEvents(ctx context.Context, filter Filter) ([]Event, error)
	ListMessages(ctx context.Context, filter Filter) ([]Message, error)
	PruneBoots(ctx context.Context, keep int) (int64, error)
}
