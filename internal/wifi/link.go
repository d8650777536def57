package wifi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/nerrad567/holter-node/internal/infrastructure/config"
)

// Link is a network attachment the agent can bring up and watch.
type Link interface {
	// Join asks the link to associate with the network.
	Join(ctx context.Context, ssid, password string) error

	// Connected reports whether the link is currently usable.
	Connected(ctx context.Context) (bool, error)
}

// Backend names accepted by NewLink.
const (
	BackendNmcli  = "nmcli"
	BackendStatic = "static"
)

// NewLink builds the link selected by cfg.Backend.
func NewLink(cfg config.WiFiConfig) (Link, error) {
	switch cfg.Backend {
	case BackendNmcli:
		return NewNmcliLink(cfg.Interface), nil
	case BackendStatic:
		return NewStaticLink(cfg.Interface), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// nmcli timeouts. Association plus DHCP can take a while on a weak signal.
const (
	nmcliJoinTimeout   = 45 * time.Second
	nmcliStatusTimeout = 5 * time.Second
)

// NmcliLink manages WiFi through NetworkManager's command-line client.
type NmcliLink struct {
	iface string
	run   Runner
}

// NewNmcliLink returns a link for iface, or for any WiFi device when iface is empty.
func NewNmcliLink(iface string) *NmcliLink {
	return &NmcliLink{iface: iface, run: execRunner}
}

// SetRunner replaces the command runner. Used by tests.
func (l *NmcliLink) SetRunner(run Runner) {
	l.run = run
}

// Join runs `nmcli device wifi connect`. The password never appears in errors.
func (l *NmcliLink) Join(ctx context.Context, ssid, password string) error {
	joinCtx, cancel := context.WithTimeout(ctx, nmcliJoinTimeout)
	defer cancel()

	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	if l.iface != "" {
		args = append(args, "ifname", l.iface)
	}

	output, err := l.run(joinCtx, "nmcli", args...)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("wifi join cancelled: %w", ctx.Err())
		}
		if errors.Is(joinCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: timed out after %v", ErrJoinFailed, nmcliJoinTimeout)
		}
		return fmt.Errorf("%w: %s: %w", ErrJoinFailed, strings.TrimSpace(string(output)), err)
	}
	return nil
}

// Connected parses `nmcli -t -f DEVICE,TYPE,STATE device status`.
func (l *NmcliLink) Connected(ctx context.Context) (bool, error) {
	statusCtx, cancel := context.WithTimeout(ctx, nmcliStatusTimeout)
	defer cancel()

	output, err := l.run(statusCtx, "nmcli", "-t", "-f", "DEVICE,TYPE,STATE", "device", "status")
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStatusUnavailable, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Split(strings.TrimSpace(scanner.Text()), ":")
		if len(fields) < 3 {
			continue
		}
		device, typ, state := fields[0], fields[1], fields[2]

		if l.iface != "" && device != l.iface {
			continue
		}
		if l.iface == "" && typ != "wifi" {
			continue
		}
		if state == "connected" {
			return true, nil
		}
	}
	return false, nil
}

// StaticLink is a link managed outside the node (ethernet, host networking).
// Join is a no-op; Connected watches the interface flags.
type StaticLink struct {
	iface  string
	lookup func(name string) (*net.Interface, error)
}

// NewStaticLink returns a link that watches iface. With no interface named
// the link always reports connected.
func NewStaticLink(iface string) *StaticLink {
	return &StaticLink{iface: iface, lookup: net.InterfaceByName}
}

// Join does nothing; the network is configured by the host.
func (l *StaticLink) Join(context.Context, string, string) error {
	return nil
}

// Connected reports whether the interface is up and running.
func (l *StaticLink) Connected(context.Context) (bool, error) {
	if l.iface == "" {
		return true, nil
	}
	ifi, err := l.lookup(l.iface)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStatusUnavailable, err)
	}
	return ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagRunning != 0, nil
}
