package wifi

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"testing"

	"github.com/nerrad567/holter-node/internal/infrastructure/config"
)

type fakeRunner struct {
	calls  [][]string
	output string
	err    error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return []byte(f.output), f.err
}

func TestNewLink(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{BackendNmcli, false},
		{BackendStatic, false},
		{"wpa_cli", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			link, err := NewLink(config.WiFiConfig{Backend: tt.backend, Interface: "wlan0"})
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownBackend) {
					t.Errorf("NewLink() error = %v, want ErrUnknownBackend", err)
				}
				return
			}
			if err != nil || link == nil {
				t.Errorf("NewLink() = %v, %v", link, err)
			}
		})
	}
}

func TestNmcliLink_Join(t *testing.T) {
	tests := []struct {
		name     string
		iface    string
		password string
		wantArgs []string
	}{
		{
			name:     "with password and interface",
			iface:    "wlan0",
			password: "hunter2",
			wantArgs: []string{"nmcli", "device", "wifi", "connect", "ward3", "password", "hunter2", "ifname", "wlan0"},
		},
		{
			name:     "open network any interface",
			wantArgs: []string{"nmcli", "device", "wifi", "connect", "ward3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			link := NewNmcliLink(tt.iface)
			link.SetRunner(runner.run)

			if err := link.Join(context.Background(), "ward3", tt.password); err != nil {
				t.Fatalf("Join() error = %v", err)
			}
			if len(runner.calls) != 1 || !slices.Equal(runner.calls[0], tt.wantArgs) {
				t.Errorf("calls = %v, want %v", runner.calls, tt.wantArgs)
			}
		})
	}
}

func TestNmcliLink_JoinFailureHidesPassword(t *testing.T) {
	runner := &fakeRunner{
		output: "Error: No network with SSID 'ward3' found.\n",
		err:    errors.New("exit status 10"),
	}
	link := NewNmcliLink("wlan0")
	link.SetRunner(runner.run)

	err := link.Join(context.Background(), "ward3", "s3cret-pass")
	if !errors.Is(err, ErrJoinFailed) {
		t.Fatalf("Join() error = %v, want ErrJoinFailed", err)
	}
	if strings.Contains(err.Error(), "s3cret-pass") {
		t.Errorf("error leaks password: %v", err)
	}
	if !strings.Contains(err.Error(), "No network with SSID") {
		t.Errorf("error lacks nmcli output: %v", err)
	}
}

func TestNmcliLink_JoinCancelled(t *testing.T) {
	runner := &fakeRunner{err: errors.New("signal: killed")}
	link := NewNmcliLink("")
	link.SetRunner(runner.run)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := link.Join(ctx, "ward3", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Join() error = %v, want context.Canceled", err)
	}
}

func TestNmcliLink_Connected(t *testing.T) {
	status := "lo:loopback:connected (externally)\n" +
		"eth0:ethernet:unavailable\n" +
		"wlan0:wifi:connected\n" +
		"wlan1:wifi:disconnected\n" +
		"p2p-dev-wlan0:wifi-p2p:disconnected\n"

	tests := []struct {
		name   string
		iface  string
		output string
		want   bool
	}{
		{"named interface connected", "wlan0", status, true},
		{"named interface disconnected", "wlan1", status, false},
		{"any wifi connected", "", status, true},
		{"no wifi connected", "", "wlan0:wifi:connecting (getting IP configuration)\n", false},
		{"loopback does not count", "", "lo:loopback:connected\n", false},
		{"empty output", "wlan0", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{output: tt.output}
			link := NewNmcliLink(tt.iface)
			link.SetRunner(runner.run)

			got, err := link.Connected(context.Background())
			if err != nil {
				t.Fatalf("Connected() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Connected() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNmcliLink_ConnectedError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("nmcli: not found")}
	link := NewNmcliLink("wlan0")
	link.SetRunner(runner.run)

	if _, err := link.Connected(context.Background()); !errors.Is(err, ErrStatusUnavailable) {
		t.Errorf("Connected() error = %v, want ErrStatusUnavailable", err)
	}
}

func TestStaticLink(t *testing.T) {
	tests := []struct {
		name    string
		iface   string
		flags   net.Flags
		lookErr error
		want    bool
		wantErr bool
	}{
		{"no interface always connected", "", 0, nil, true, false},
		{"up and running", "eth0", net.FlagUp | net.FlagRunning, nil, true, false},
		{"up without carrier", "eth0", net.FlagUp, nil, false, false},
		{"down", "eth0", 0, nil, false, false},
		{"missing interface", "eth9", 0, errors.New("no such network interface"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := NewStaticLink(tt.iface)
			link.lookup = func(name string) (*net.Interface, error) {
				if tt.lookErr != nil {
					return nil, tt.lookErr
				}
				return &net.Interface{Name: name, Flags: tt.flags}, nil
			}

			if err := link.Join(context.Background(), "ignored", "ignored"); err != nil {
				t.Errorf("Join() error = %v", err)
			}

			got, err := link.Connected(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Connected() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Connected() = %v, want %v", got, tt.want)
			}
		})
	}
}
