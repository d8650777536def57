package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/holter-node/internal/infrastructure/config"
	"github.com/nerrad567/holter-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/holter-node/internal/journal"
	"github.com/nerrad567/holter-node/internal/led"
	"github.com/nerrad567/holter-node/internal/restart"
	"github.com/nerrad567/holter-node/internal/wifi"
)

// Broker is the MQTT session the agent drives. *mqtt.Client satisfies it.
type Broker interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Recorder journals what the agent does. *journal.SQLiteRepository satisfies it.
type Recorder interface {
	RecordEvent(ctx context.Context, kind journal.EventKind, detail string, attempt int) error
	RecordMessage(ctx context.Context, dir journal.Direction, topic string, payload []byte) error
}

// Metrics receives telemetry. *influxdb.Client satisfies it.
type Metrics interface {
	WriteHeartbeat(ok bool, latency time.Duration)
	WriteConnectAttempt(target string, attempt int, ok bool)
	WriteLinkState(wifi, broker bool)
	WriteInbound(topic string, size int)
}

// Logger is the logging surface the agent needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Metric targets, matching the influxdb package.
const (
	targetWiFi   = "wifi"
	targetBroker = "broker"
)

// Options are the agent's tunables.
type Options struct {
	WiFi wifi.Options

	PublishTopic   string
	SubscribeTopic string
	QoS            byte

	HeartbeatInterval time.Duration
	HeartbeatPayload  string
	BlinkInterval     time.Duration
	PollInterval      time.Duration
	LinkCheckInterval time.Duration

	BrokerMaxAttempts int
	BrokerRetryDelay  time.Duration

	InboundQueue int
}

// OptionsFromConfig maps the configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		WiFi:              wifi.OptionsFromConfig(cfg.WiFi),
		PublishTopic:      cfg.MQTT.Topics.Publish,
		SubscribeTopic:    cfg.MQTT.Topics.Subscribe,
		QoS:               byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
		HeartbeatInterval: cfg.Heartbeat.Interval,
		HeartbeatPayload:  cfg.Heartbeat.Payload,
		BlinkInterval:     cfg.LED.BlinkInterval,
		PollInterval:      cfg.Loop.PollInterval,
		LinkCheckInterval: cfg.Loop.LinkCheckInterval,
		BrokerMaxAttempts: cfg.MQTT.Connect.MaxAttempts,
		BrokerRetryDelay:  cfg.MQTT.Connect.RetryDelay,
		InboundQueue:      cfg.Loop.InboundQueue,
	}
}

// Defaults for zero Options fields.
const (
	defaultPollInterval      = 50 * time.Millisecond
	defaultBrokerMaxAttempts = 10
	defaultInboundQueue      = 64
	defaultHeartbeatPayload  = `{"message": "Hello from ESP32"}`
)

func (o *Options) applyDefaults() {
	if o.PublishTopic == "" {
		o.PublishTopic = mqtt.DefaultPublishTopic
	}
	if o.SubscribeTopic == "" {
		o.SubscribeTopic = mqtt.DefaultSubscribeTopic
	}
	if o.HeartbeatPayload == "" {
		o.HeartbeatPayload = defaultHeartbeatPayload
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.BrokerMaxAttempts < 1 {
		o.BrokerMaxAttempts = defaultBrokerMaxAttempts
	}
	if o.BrokerRetryDelay < 0 {
		o.BrokerRetryDelay = 0
	}
	if o.InboundQueue < 1 {
		o.InboundQueue = defaultInboundQueue
	}
}

// Deps are the collaborators the agent drives.
type Deps struct {
	Link      wifi.Link
	Broker    Broker
	Indicator led.Indicator
	Restarter restart.Restarter

	// Optional.
	Recorder Recorder
	Metrics  Metrics
	Clock    Clock
	Logger   Logger
	BootID   string
}

// Status is a point-in-time view of the agent.
type Status struct {
	BootID    string    `json:"boot_id,omitempty"`
	StartedAt time.Time `json:"started_at"`

	WiFiConnected   bool `json:"wifi_connected"`
	BrokerConnected bool `json:"broker_connected"`
	LEDOn           bool `json:"led_on"`

	WiFiConnectAttempts   uint64 `json:"wifi_connect_attempts"`
	BrokerConnectAttempts uint64 `json:"broker_connect_attempts"`

	HeartbeatsPublished uint64    `json:"heartbeats_published"`
	HeartbeatsFailed    uint64    `json:"heartbeats_failed"`
	LastHeartbeat       time.Time `json:"last_heartbeat,omitzero"`

	MessagesReceived uint64    `json:"messages_received"`
	MessagesDropped  uint64    `json:"messages_dropped"`
	LastMessage      time.Time `json:"last_message,omitzero"`

	RestartReason string `json:"restart_reason,omitempty"`
}

type inboundMessage struct {
	topic   string
	payload []byte
}

// Agent is the device loop. Setup, Step and Run must be called from a single
// goroutine; Status is safe from any goroutine.
type Agent struct {
	opts      Options
	link      wifi.Link
	broker    Broker
	blinker   *led.Blinker
	restarter restart.Restarter
	recorder  Recorder
	metrics   Metrics
	clock     Clock
	logger    Logger

	blink     Interval
	heartbeat Interval
	linkCheck Interval

	inbound    chan inboundMessage
	dropped    atomic.Uint64
	subscribed bool

	// sleep waits between broker attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	status Status
}

// New validates dependencies and builds an Agent.
func New(opts Options, deps Deps) (*Agent, error) {
	var missing []error
	if deps.Link == nil {
		missing = append(missing, fmt.Errorf("%w: link", ErrMissingDependency))
	}
	if deps.Broker == nil {
		missing = append(missing, fmt.Errorf("%w: broker", ErrMissingDependency))
	}
	if deps.Indicator == nil {
		missing = append(missing, fmt.Errorf("%w: indicator", ErrMissingDependency))
	}
	if deps.Restarter == nil {
		missing = append(missing, fmt.Errorf("%w: restarter", ErrMissingDependency))
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	opts.applyDefaults()

	a := &Agent{
		opts:      opts,
		link:      deps.Link,
		broker:    deps.Broker,
		blinker:   led.NewBlinker(deps.Indicator),
		restarter: deps.Restarter,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		logger:    deps.Logger,
		blink:     NewInterval(opts.BlinkInterval),
		heartbeat: NewInterval(opts.HeartbeatInterval),
		linkCheck: NewInterval(opts.LinkCheckInterval),
		inbound:   make(chan inboundMessage, opts.InboundQueue),
		sleep:     sleepContext,
	}
	if a.recorder == nil {
		a.recorder = nopRecorder{}
	}
	if a.metrics == nil {
		a.metrics = nopMetrics{}
	}
	if a.clock == nil {
		a.clock = NewSystemClock()
	}
	if a.logger == nil {
		a.logger = nopLogger{}
	}
	a.status.BootID = deps.BootID
	a.status.StartedAt = time.Now().UTC()

	return a, nil
}

// Setup connects WiFi and the broker, subscribes to the inbound topic and
// arms both intervals. The first heartbeat goes out one full interval later.
//
// Returns:
//   - error: ctx's error on cancellation, ErrRestartRequired when the broker
//     could not be reached
func (a *Agent) Setup(ctx context.Context) error {
	if err := a.blinker.Off(); err != nil {
		a.logger.Warn("status LED unavailable", "error", err)
	}

	if err := a.connectWiFi(ctx); err != nil {
		return err
	}
	if err := a.connectBroker(ctx); err != nil {
		return err
	}
	a.subscribe()

	now := a.clock.Now()
	a.blink.Reset(now)
	a.heartbeat.Reset(now)
	a.linkCheck.Reset(now)

	a.logger.Info("agent ready",
		"publish_topic", a.opts.PublishTopic,
		"subscribe_topic", a.opts.SubscribeTopic,
		"heartbeat_interval", a.opts.HeartbeatInterval,
		"blink_interval", a.opts.BlinkInterval,
	)
	return nil
}

// Step runs one loop iteration: reconnect check, blink, relay, heartbeat.
//
// Returns:
//   - error: ctx's error on cancellation, ErrRestartRequired when a broker
//     reconnect ran out of attempts; nil otherwise
func (a *Agent) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := a.reconnect(ctx); err != nil {
		return err
	}

	now := a.clock.Now()

	if a.blink.Due(now) {
		if err := a.blinker.Toggle(); err != nil {
			a.logger.Warn("status LED write failed", "error", err)
		}
	}

	a.relay(ctx)

	if a.heartbeat.Due(now) {
		a.publishHeartbeat(ctx)
	}

	return nil
}

// Run calls Setup, then Step once per poll interval until ctx is cancelled.
//
// Returns:
//   - nil: ctx was cancelled
//   - ErrRestartRequired: the broker retry budget was spent
func (a *Agent) Run(ctx context.Context) error {
	defer func() {
		if err := a.blinker.Off(); err != nil {
			a.logger.Debug("turning status LED off", "error", err)
		}
	}()

	if err := a.Setup(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := a.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Status returns a snapshot of the agent's state.
func (a *Agent) Status() Status {
	a.mu.RLock()
	s := a.status
	a.mu.RUnlock()

	s.LEDOn = a.blinker.On()
	s.MessagesDropped = a.dropped.Load()
	return s
}

// reconnect is the per-step connectivity check. The link is queried at most
// once per link check interval; the broker session on every step.
func (a *Agent) reconnect(ctx context.Context) error {
	if a.linkCheck.Due(a.clock.Now()) {
		wifiUp, err := a.link.Connected(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("WiFi status check failed", "error", err)
		}
		if !wifiUp {
			a.setLinkState(false, a.broker.IsConnected())
			a.logger.Warn("WiFi connection lost")
			a.record(ctx, journal.EventWiFiLost, "", 0)
			if err := a.connectWiFi(ctx); err != nil {
				return err
			}
			a.linkCheck.Reset(a.clock.Now())
		}
	}

	if !a.broker.IsConnected() {
		a.setLinkState(true, false)
		a.logger.Warn("MQTT connection lost")
		a.record(ctx, journal.EventBrokerLost, "", 0)
		if err := a.connectBroker(ctx); err != nil {
			return err
		}
	}

	if !a.subscribed {
		a.subscribe()
	}
	return nil
}

// connectWiFi blocks until the link is up or ctx ends.
func (a *Agent) connectWiFi(ctx context.Context) error {
	attempts, err := wifi.Connect(ctx, a.link, a.opts.WiFi, a.logger)

	a.mu.Lock()
	a.status.WiFiConnectAttempts += uint64(attempts) // #nosec G115 -- attempts is positive
	a.mu.Unlock()
	a.metrics.WriteConnectAttempt(targetWiFi, attempts, err == nil)

	if err != nil {
		return err
	}

	a.setLinkState(true, a.broker.IsConnected())
	a.record(ctx, journal.EventWiFiConnected, a.opts.WiFi.SSID, attempts)
	return nil
}

// connectBroker tries the broker up to BrokerMaxAttempts times, then asks for
// a restart.
func (a *Agent) connectBroker(ctx context.Context) error {
	maxAttempts := a.opts.BrokerMaxAttempts
	a.logger.Info("connecting to MQTT broker", "max_attempts", maxAttempts)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		a.mu.Lock()
		a.status.BrokerConnectAttempts++
		a.mu.Unlock()

		err := a.broker.Connect(ctx)
		a.metrics.WriteConnectAttempt(targetBroker, attempt, err == nil)

		if err == nil {
			a.logger.Info("connected to MQTT broker", "attempts", attempt)
			a.setLinkState(true, true)
			a.record(ctx, journal.EventBrokerConnected, "", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		a.logger.Warn("MQTT connect attempt failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)
		a.record(ctx, journal.EventBrokerConnectFailed, err.Error(), attempt)

		if attempt < maxAttempts {
			if err := a.sleep(ctx, a.opts.BrokerRetryDelay); err != nil {
				return err
			}
		}
	}

	a.logger.Error("MQTT connection failed, restarting", "attempts", maxAttempts)
	a.record(ctx, journal.EventRestartRequested, ReasonBrokerExhausted, maxAttempts)

	a.mu.Lock()
	a.status.RestartReason = ReasonBrokerExhausted
	a.mu.Unlock()

	if err := a.restarter.Restart(ctx, ReasonBrokerExhausted); err != nil {
		a.logger.Error("restart request failed", "error", err)
	}
	return ErrRestartRequired
}

// subscribe registers the inbound handler. A failure is retried on the next step.
func (a *Agent) subscribe() {
	if err := a.broker.Subscribe(a.opts.SubscribeTopic, a.opts.QoS, a.enqueue); err != nil {
		a.logger.Warn("MQTT subscribe failed", "topic", a.opts.SubscribeTopic, "error", err)
		a.subscribed = false
		return
	}
	a.subscribed = true
}

// enqueue runs on the MQTT library's goroutine and only hands the message over.
func (a *Agent) enqueue(topic string, payload []byte) error {
	msg := inboundMessage{topic: topic, payload: append([]byte(nil), payload...)}
	select {
	case a.inbound <- msg:
		return nil
	default:
		a.dropped.Add(1)
		return fmt.Errorf("inbound queue full (%d), dropped message on %s", cap(a.inbound), topic)
	}
}

// relay drains the inbound queue.
func (a *Agent) relay(ctx context.Context) {
	for {
		select {
		case msg := <-a.inbound:
			a.logger.Info("MQTT message received",
				"topic", msg.topic,
				"payload", string(msg.payload),
			)

			a.mu.Lock()
			a.status.MessagesReceived++
			a.status.LastMessage = time.Now().UTC()
			a.mu.Unlock()

			if err := a.recorder.RecordMessage(ctx, journal.DirectionIn, msg.topic, msg.payload); err != nil {
				a.logger.Warn("journal write failed", "error", err)
			}
			a.metrics.WriteInbound(msg.topic, len(msg.payload))
		default:
			a.reportDropped(ctx)
			return
		}
	}
}

// reportDropped journals drops counted by enqueue since the last report.
func (a *Agent) reportDropped(ctx context.Context) {
	total := a.dropped.Load()
	a.mu.Lock()
	newly := total - a.status.MessagesDropped
	a.status.MessagesDropped = total
	a.mu.Unlock()

	if newly > 0 {
		a.logger.Warn("inbound messages dropped", "count", newly, "queue", cap(a.inbound))
		a.record(ctx, journal.EventInboundDropped, fmt.Sprintf("%d messages", newly), 0)
	}
}

// publishHeartbeat sends the fixed payload. Failures are counted, never fatal.
func (a *Agent) publishHeartbeat(ctx context.Context) {
	payload := []byte(a.opts.HeartbeatPayload)

	start := time.Now()
	err := a.broker.Publish(a.opts.PublishTopic, payload, a.opts.QoS, false)
	latency := time.Since(start)

	a.metrics.WriteHeartbeat(err == nil, latency)

	if err != nil {
		a.mu.Lock()
		a.status.HeartbeatsFailed++
		a.mu.Unlock()

		a.logger.Warn("heartbeat publish failed", "topic", a.opts.PublishTopic, "error", err)
		a.record(ctx, journal.EventHeartbeatFailed, err.Error(), 0)
		return
	}

	a.mu.Lock()
	a.status.HeartbeatsPublished++
	a.status.LastHeartbeat = time.Now().UTC()
	a.mu.Unlock()

	a.logger.Debug("heartbeat published", "topic", a.opts.PublishTopic, "latency", latency)
	if err := a.recorder.RecordMessage(ctx, journal.DirectionOut, a.opts.PublishTopic, payload); err != nil {
		a.logger.Warn("journal write failed", "error", err)
	}
}

// setLinkState updates the connection booleans and reports changes.
func (a *Agent) setLinkState(wifiUp, brokerUp bool) {
	a.mu.Lock()
	changed := a.status.WiFiConnected != wifiUp || a.status.BrokerConnected != brokerUp
	a.status.WiFiConnected = wifiUp
	a.status.BrokerConnected = brokerUp
	a.mu.Unlock()

	if changed {
		a.metrics.WriteLinkState(wifiUp, brokerUp)
	}
}

func (a *Agent) record(ctx context.Context, kind journal.EventKind, detail string, attempt int) {
	if err := a.recorder.RecordEvent(ctx, kind, detail, attempt); err != nil {
		a.logger.Warn("journal write failed", "event", kind, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(context.Context, journal.EventKind, string, int) error { return nil }
func (nopRecorder) RecordMessage(context.Context, journal.Direction, string, []byte) error {
	return nil
}

type nopMetrics struct{}

func (nopMetrics) WriteHeartbeat(bool, time.Duration)     {}
func (nopMetrics) WriteConnectAttempt(string, int, bool) {}
func (nopMetrics) WriteLinkState(bool, bool)             {}
func (nopMetrics) WriteInbound(string, int)              {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
