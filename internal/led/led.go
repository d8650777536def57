package led

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/holter-node/internal/infrastructure/config"
)

// Backend names accepted by New.
const (
	BackendSysfs = "sysfs"
	BackendGPIO  = "gpio"
	BackendLog   = "log"
	BackendNone  = "none"
)

var (
	// ErrUnknownBackend is returned by New for an unsupported backend name.
	ErrUnknownBackend = errors.New("led: unknown backend")

	// ErrUnavailable is returned when the LED device cannot be opened.
	ErrUnavailable = errors.New("led: device unavailable")
)

// Indicator is a single on/off light.
type Indicator interface {
	Set(on bool) error
	Close() error
}

// Logger is the logging surface the log backend needs.
type Logger interface {
	Debug(msg string, args ...any)
}

// New opens the indicator selected by cfg.Backend.
func New(cfg config.LEDConfig, logger Logger) (Indicator, error) {
	root := cfg.SysfsRoot
	if root == "" {
		root = "/sys"
	}

	switch cfg.Backend {
	case BackendSysfs:
		return OpenSysfs(root, cfg.Name)
	case BackendGPIO:
		return OpenGPIO(root, cfg.Pin)
	case BackendLog:
		return NewLogIndicator(logger), nil
	case BackendNone, "":
		return None{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Sysfs drives an LED class device.
type Sysfs struct {
	path string
	on   string
}

// OpenSysfs opens <root>/class/leds/<name>. The on level is the device's
// max_brightness when readable, otherwise 1.
func OpenSysfs(root, name string) (*Sysfs, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: sysfs LED name is empty", ErrUnavailable)
	}
	dir := filepath.Join(root, "class", "leds", name)

	brightness := filepath.Join(dir, "brightness")
	if _, err := os.Stat(brightness); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	on := "1"
	if data, err := os.ReadFile(filepath.Join(dir, "max_brightness")); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" && v != "0" {
			on = v
		}
	}

	return &Sysfs{path: brightness, on: on}, nil
}

// Set writes the brightness.
func (s *Sysfs) Set(on bool) error {
	value := "0"
	if on {
		value = s.on
	}
	return writeAttr(s.path, value)
}

// Close turns the LED off.
func (s *Sysfs) Close() error {
	return s.Set(false)
}

// exportWait bounds how long udev may take to create the exported GPIO directory.
const exportWait = time.Second

// GPIO drives a line through the legacy sysfs GPIO interface.
type GPIO struct {
	root     string
	pin      int
	value    string
	exported bool
}

// OpenGPIO exports pin if needed and configures it as an output.
func OpenGPIO(root string, pin int) (*GPIO, error) {
	return openGPIO(root, pin, exportWait)
}

func openGPIO(root string, pin int, wait time.Duration) (*GPIO, error) {
	if pin < 0 {
		return nil, fmt.Errorf("%w: invalid GPIO pin %d", ErrUnavailable, pin)
	}
	base := filepath.Join(root, "class", "gpio")
	dir := filepath.Join(base, "gpio"+strconv.Itoa(pin))

	g := &GPIO{root: base, pin: pin, value: filepath.Join(dir, "value")}

	if _, err := os.Stat(dir); err != nil {
		if err := writeAttr(filepath.Join(base, "export"), strconv.Itoa(pin)); err != nil {
			return nil, fmt.Errorf("%w: exporting GPIO %d: %w", ErrUnavailable, pin, err)
		}
		g.exported = true
		if err := waitForPath(dir, wait); err != nil {
			return nil, fmt.Errorf("%w: GPIO %d not exported: %w", ErrUnavailable, pin, err)
		}
	}

	if err := writeAttr(filepath.Join(dir, "direction"), "out"); err != nil {
		return nil, fmt.Errorf("%w: setting GPIO %d direction: %w", ErrUnavailable, pin, err)
	}

	return g, nil
}

// Set drives the line high for on.
func (g *GPIO) Set(on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	return writeAttr(g.value, value)
}

// Close drives the line low and unexports it if OpenGPIO exported it.
func (g *GPIO) Close() error {
	err := g.Set(false)
	if g.exported {
		if uerr := writeAttr(filepath.Join(g.root, "unexport"), strconv.Itoa(g.pin)); uerr != nil {
			err = errors.Join(err, uerr)
		}
	}
	return err
}

// LogIndicator logs state changes instead of driving hardware.
type LogIndicator struct {
	logger Logger
}

// NewLogIndicator returns a LogIndicator. A nil logger discards.
func NewLogIndicator(logger Logger) *LogIndicator {
	return &LogIndicator{logger: logger}
}

// Set logs the new state.
func (l *LogIndicator) Set(on bool) error {
	if l.logger != nil {
		l.logger.Debug("status LED", "on", on)
	}
	return nil
}

// Close does nothing.
func (l *LogIndicator) Close() error { return nil }

// None is an indicator that does nothing.
type None struct{}

// Set does nothing.
func (None) Set(bool) error { return nil }

// Close does nothing.
func (None) Close() error { return nil }

func writeAttr(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close() //nolint:errcheck // write error takes precedence
		return err
	}
	return f.Close()
}

func waitForPath(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		_, err := os.Stat(path)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
}
