package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/holter-node/internal/infrastructure/config"
	"github.com/nerrad567/holter-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/holter-node/internal/infrastructure/mqtt/mqtttest"
	"github.com/nerrad567/holter-node/internal/led"
	"github.com/nerrad567/holter-node/internal/wifi"
)

func brokerConfig(b *mqtttest.Broker) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     b.Host,
			Port:     b.Port,
			ClientID: "esp32_holter",
		},
		Topics: config.MQTTTopicsConfig{
			Publish:   "esp32/pub",
			Subscribe: "esp32/sub",
		},
		Connect: config.MQTTConnectConfig{
			MaxAttempts: 10,
			RetryDelay:  20 * time.Millisecond,
			Timeout:     2 * time.Second,
			KeepAlive:   30 * time.Second,
		},
	}
}

func TestAgent_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping broker test in short mode")
	}

	broker := mqtttest.Start(t)
	if err := broker.Capture("esp32/pub"); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	client, err := mqtt.New(brokerConfig(broker))
	if err != nil {
		t.Fatalf("mqtt.New() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	recorder := &fakeRecorder{}
	restarter := &fakeRestarter{}

	opts := testOptions()
	opts.HeartbeatInterval = 50 * time.Millisecond
	opts.BlinkInterval = 20 * time.Millisecond
	opts.PollInterval = 5 * time.Millisecond

	a, err := New(opts, Deps{
		Link:      wifi.NewStaticLink(""),
		Broker:    client,
		Indicator: led.None{},
		Restarter: restarter,
		Recorder:  recorder,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	msgs := broker.WaitFor(t, "esp32/pub", 2, 5*time.Second)
	if got := string(msgs[0].Payload); got != `{"message": "Hello from ESP32"}` {
		t.Errorf("heartbeat payload = %q", got)
	}
	if msgs[0].ClientID != "esp32_holter" {
		t.Errorf("heartbeat client = %q, want esp32_holter", msgs[0].ClientID)
	}

	if err := broker.Publish("esp32/sub", []byte("hello node")); err != nil {
		t.Fatalf("broker Publish() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for a.Status().MessagesReceived == 0 {
		if time.Now().After(deadline) {
			t.Fatal("inbound message never relayed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if len(restarter.reasons) != 0 {
		t.Errorf("unexpected restart: %v", restarter.reasons)
	}
}

func TestAgent_UnreachableBrokerRequestsRestart(t *testing.T) {
	broker := mqtttest.Start(t)
	cfg := brokerConfig(broker)
	cfg.Connect.Timeout = 500 * time.Millisecond
	broker.Close()

	client, err := mqtt.New(cfg)
	if err != nil {
		t.Fatalf("mqtt.New() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	restarter := &fakeRestarter{}
	opts := testOptions()
	opts.BrokerMaxAttempts = 3
	opts.BrokerRetryDelay = time.Millisecond

	a, err := New(opts, Deps{
		Link:      wifi.NewStaticLink(""),
		Broker:    client,
		Indicator: led.None{},
		Restarter: restarter,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = a.Run(context.Background())
	if !errors.Is(err, ErrRestartRequired) {
		t.Fatalf("Run() error = %v, want ErrRestartRequired", err)
	}
	if len(restarter.reasons) != 1 {
		t.Errorf("restart reasons = %v, want one", restarter.reasons)
	}
	if got := a.Status().BrokerConnectAttempts; got != 3 {
		t.Errorf("BrokerConnectAttempts = %d, want 3", got)
	}
}
