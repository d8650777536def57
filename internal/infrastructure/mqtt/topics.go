package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/holter-node/internal/infrastructure/config"
)

// Default topic names. Cloud broker policies are usually written against
// these, so changing them needs a matching policy change.
const (
	DefaultPublishTopic   = "esp32/pub"
	DefaultSubscribeTopic = "esp32/sub"
)

// maxTopicLength is the MQTT limit on topic name length in bytes.
const maxTopicLength = 65535

// Topics resolves the node's topic names from configuration.
//
//	topics := mqtt.NewTopics(cfg.MQTT.Topics)
//	client.PublishString(topics.Heartbeat(), payload, 0, false)
type Topics struct {
	publish   string
	subscribe string
	status    string
}

// NewTopics returns Topics with defaults filled in for empty names.
// The status topic has no default; empty disables status messages.
func NewTopics(cfg config.MQTTTopicsConfig) Topics {
	t := Topics{
		publish:   cfg.Publish,
		subscribe: cfg.Subscribe,
		status:    cfg.Status,
	}
	if t.publish == "" {
		t.publish = DefaultPublishTopic
	}
	if t.subscribe == "" {
		t.subscribe = DefaultSubscribeTopic
	}
	return t
}

// Heartbeat returns the topic heartbeats are published to.
//
// Example: esp32/pub
func (t Topics) Heartbeat() string {
	return t.publish
}

// Inbound returns the topic filter the node listens on.
//
// Example: esp32/sub
func (t Topics) Inbound() string {
	return t.subscribe
}

// Status returns the online/offline status topic, or "" when disabled.
func (t Topics) Status() string {
	return t.status
}

// ValidatePublishTopic checks a topic name for publishing.
// Wildcards are not allowed in topic names.
func ValidatePublishTopic(topic string) error {
	if err := validateCommon(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in publish topic %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a subscription filter.
//
// "+" must occupy a whole level; "#" must occupy the whole last level.
func ValidateFilter(filter string) error {
	if err := validateCommon(filter); err != nil {
		return err
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: '#' must be the whole last level in %q", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: '+' must be a whole level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func validateCommon(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: topic contains NUL", ErrInvalidTopic)
	}
	return nil
}
