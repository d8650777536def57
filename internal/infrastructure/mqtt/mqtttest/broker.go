// Package mqtttest runs an in-process MQTT broker for tests.
//
// Tests get a real broker on a loopback port without needing Mosquitto
// installed, optionally behind mutual TLS:
//
//	broker := mqtttest.Start(t)
//	broker.Capture("esp32/pub")
//	... connect a client to broker.Host / broker.Port ...
//	msgs := broker.WaitFor(t, "esp32/pub", 1, 2*time.Second)
package mqtttest

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

// Message is a publish observed by the broker.
type Message struct {
	// ClientID is the publishing client, "inline" for Broker.Publish.
	ClientID string
	Topic    string
	Payload  []byte
	Retain   bool
}

// Broker is a running in-process broker.
type Broker struct {
	Host string
	Port int

	server *mochi.Server

	mu       sync.Mutex
	received []Message
	filters  []string
}

// Option configures Start.
type Option func(*options)

type options struct {
	tlsConfig *tls.Config
}

// WithTLS serves the listener over TLS.
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = cfg
	}
}

// Start launches a broker on a free loopback port and stops it when the test ends.
func Start(t testing.TB, opts ...Option) *Broker {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	port := freePort(t)

	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("mqtttest: adding auth hook: %v", err)
	}

	b := &Broker{
		Host:   "127.0.0.1",
		Port:   port,
		server: server,
	}
	if err := server.AddHook(&captureHook{broker: b}, nil); err != nil {
		t.Fatalf("mqtttest: adding capture hook: %v", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:        "test",
		Address:   net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		TLSConfig: o.tlsConfig,
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("mqtttest: adding listener: %v", err)
	}

	go func() {
		if err := server.Serve(); err != nil {
			t.Logf("mqtttest: serve: %v", err)
		}
	}()

	t.Cleanup(b.Close)
	return b
}

// freePort asks the kernel for an unused loopback port.
func freePort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mqtttest: finding free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// Close stops the broker. Safe to call more than once.
func (b *Broker) Close() {
	b.mu.Lock()
	server := b.server
	b.server = nil
	b.mu.Unlock()

	if server != nil {
		_ = server.Close() //nolint:errcheck // test teardown
	}
}

// Capture records every message matching filter from now on.
func (b *Broker) Capture(filter string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.server == nil {
		return errors.New("mqtttest: broker closed")
	}
	b.filters = append(b.filters, filter)
	return nil
}

// record stores pk if a captured filter matches its topic.
func (b *Broker) record(cl *mochi.Client, pk packets.Packet) {
	b.mu.Lock()
	defer b.mu.Unlock()

	matched := false
	for _, f := range b.filters {
		if matchTopic(f, pk.TopicName) {
			matched = true
			break
		}
	}
	if !matched {
		return
	}

	msg := Message{
		Topic:   pk.TopicName,
		Payload: bytes.Clone(pk.Payload),
		Retain:  pk.FixedHeader.Retain,
	}
	if cl != nil {
		msg.ClientID = cl.ID
	}
	b.received = append(b.received, msg)
}

// captureHook hands every completed publish, with its sender, to the broker.
type captureHook struct {
	mochi.HookBase
	broker *Broker
}

func (h *captureHook) ID() string { return "mqtttest-capture" }

func (h *captureHook) Provides(b byte) bool {
	return b == mochi.OnPublished
}

func (h *captureHook) OnPublished(cl *mochi.Client, pk packets.Packet) {
	h.broker.record(cl, pk)
}

// matchTopic reports whether topic matches filter, honouring + and #.
func matchTopic(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}

// Publish sends a message from the broker's inline client.
func (b *Broker) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	server := b.server
	b.mu.Unlock()

	if server == nil {
		return errors.New("mqtttest: broker closed")
	}
	return server.Publish(topic, payload, false, 0)
}

// Messages returns captured messages for topic.
func (b *Broker) Messages(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Message
	for _, m := range b.received {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// WaitFor polls until at least n messages arrived on topic or the timeout passes.
func (b *Broker) WaitFor(t testing.TB, topic string, n int, timeout time.Duration) []Message {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		msgs := b.Messages(topic)
		if len(msgs) >= n {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("mqtttest: got %d messages on %q, want %d", len(msgs), topic, n)
			return msgs
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Connected reports whether a client with id is attached.
func (b *Broker) Connected(id string) bool {
	b.mu.Lock()
	server := b.server
	b.mu.Unlock()

	if server == nil {
		return false
	}
	cl, ok := server.Clients.Get(id)
	return ok && !cl.Closed()
}

// Kick drops the client's connection without a clean disconnect.
func (b *Broker) Kick(id string) bool {
	b.mu.Lock()
	server := b.server
	b.mu.Unlock()

	if server == nil {
		return false
	}
	cl, ok := server.Clients.Get(id)
	if !ok {
		return false
	}
	cl.Stop(errors.New("mqtttest: kicked"))
	return true
}
