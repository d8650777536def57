package wifi

import (
	"context"
	"time"

	"github.com/nerrad567/holter-node/internal/infrastructure/config"
)

// Logger is the logging surface Connect needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// defaultRetryDelay matches the radio firmware's classic 5 second poll.
const defaultRetryDelay = 5 * time.Second

// Options for Connect.
type Options struct {
	SSID       string
	Password   string
	RetryDelay time.Duration
}

// OptionsFromConfig maps the wifi config section to Options.
func OptionsFromConfig(cfg config.WiFiConfig) Options {
	return Options{
		SSID:       cfg.SSID,
		Password:   cfg.Password,
		RetryDelay: cfg.RetryDelay,
	}
}

// Connect brings link up, retrying with a fixed delay until it is connected.
//
// There is no attempt limit. The only error returned is ctx's.
//
// Returns:
//   - int: Number of rounds it took (1 when already connected)
//   - error: ctx.Err() on cancellation
func Connect(ctx context.Context, link Link, opts Options, logger Logger) (int, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	for attempt := 1; ; attempt++ {
		if ok, err := link.Connected(ctx); err == nil && ok {
			logger.Info("connected to WiFi network", "ssid", opts.SSID, "attempts", attempt)
			return attempt, nil
		}

		if err := link.Join(ctx, opts.SSID, opts.Password); err != nil && ctx.Err() == nil {
			logger.Warn("WiFi join failed", "ssid", opts.SSID, "attempt", attempt, "error", err)
		}

		ok, err := link.Connected(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Warn("WiFi status check failed", "error", err)
		}
		if ok {
			logger.Info("connected to WiFi network", "ssid", opts.SSID, "attempts", attempt)
			return attempt, nil
		}

		logger.Info("connecting to WiFi", "ssid", opts.SSID, "attempt", attempt)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
}
