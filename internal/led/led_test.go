package led

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/holter-node/internal/infrastructure/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.TrimSpace(string(data))
}

// fakeLEDClass lays out /sys/class/leds/<name> under a temp root.
func fakeLEDClass(t *testing.T, name, maxBrightness string) (root, brightness string) {
	t.Helper()
	root = t.TempDir()
	dir := filepath.Join(root, "class", "leds", name)
	brightness = filepath.Join(dir, "brightness")
	writeFile(t, brightness, "0")
	if maxBrightness != "" {
		writeFile(t, filepath.Join(dir, "max_brightness"), maxBrightness+"\n")
	}
	return root, brightness
}

// fakeGPIO lays out /sys/class/gpio with the pin already exported.
func fakeGPIO(t *testing.T, pin string, exported bool) (root string) {
	t.Helper()
	root = t.TempDir()
	base := filepath.Join(root, "class", "gpio")
	writeFile(t, filepath.Join(base, "export"), "")
	writeFile(t, filepath.Join(base, "unexport"), "")
	if exported {
		writeFile(t, filepath.Join(base, "gpio"+pin, "direction"), "in")
		writeFile(t, filepath.Join(base, "gpio"+pin, "value"), "0")
	}
	return root
}

func TestNew(t *testing.T) {
	ledRoot, _ := fakeLEDClass(t, "status", "")
	gpioRoot := fakeGPIO(t, "2", true)

	tests := []struct {
		name    string
		cfg     config.LEDConfig
		wantErr error
	}{
		{"sysfs", config.LEDConfig{Backend: BackendSysfs, Name: "status", SysfsRoot: ledRoot}, nil},
		{"gpio", config.LEDConfig{Backend: BackendGPIO, Pin: 2, SysfsRoot: gpioRoot}, nil},
		{"log", config.LEDConfig{Backend: BackendLog}, nil},
		{"none", config.LEDConfig{Backend: BackendNone}, nil},
		{"empty means none", config.LEDConfig{}, nil},
		{"unknown", config.LEDConfig{Backend: "neopixel"}, ErrUnknownBackend},
		{"sysfs missing", config.LEDConfig{Backend: BackendSysfs, Name: "absent", SysfsRoot: ledRoot}, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind, err := New(tt.cfg, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if err := ind.Set(true); err != nil {
				t.Errorf("Set(true) error = %v", err)
			}
			if err := ind.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}

func TestSysfs(t *testing.T) {
	root, brightness := fakeLEDClass(t, "status", "255")

	led, err := OpenSysfs(root, "status")
	if err != nil {
		t.Fatalf("OpenSysfs() error = %v", err)
	}

	if err := led.Set(true); err != nil {
		t.Fatalf("Set(true) error = %v", err)
	}
	if got := readFile(t, brightness); got != "255" {
		t.Errorf("brightness = %q, want 255", got)
	}

	if err := led.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := readFile(t, brightness); got != "0" {
		t.Errorf("brightness after Close = %q, want 0", got)
	}
}

func TestSysfsDefaultsToOne(t *testing.T) {
	root, brightness := fakeLEDClass(t, "status", "")

	led, err := OpenSysfs(root, "status")
	if err != nil {
		t.Fatalf("OpenSysfs() error = %v", err)
	}
	if err := led.Set(true); err != nil {
		t.Fatalf("Set(true) error = %v", err)
	}
	if got := readFile(t, brightness); got != "1" {
		t.Errorf("brightness = %q, want 1", got)
	}
}

func TestSysfsEmptyName(t *testing.T) {
	if _, err := OpenSysfs(t.TempDir(), ""); !errors.Is(err, ErrUnavailable) {
		t.Errorf("OpenSysfs() error = %v, want ErrUnavailable", err)
	}
}

func TestGPIO_AlreadyExported(t *testing.T) {
	root := fakeGPIO(t, "2", true)
	pinDir := filepath.Join(root, "class", "gpio", "gpio2")

	g, err := OpenGPIO(root, 2)
	if err != nil {
		t.Fatalf("OpenGPIO() error = %v", err)
	}
	if got := readFile(t, filepath.Join(pinDir, "direction")); got != "out" {
		t.Errorf("direction = %q, want out", got)
	}

	if err := g.Set(true); err != nil {
		t.Fatalf("Set(true) error = %v", err)
	}
	if got := readFile(t, filepath.Join(pinDir, "value")); got != "1" {
		t.Errorf("value = %q, want 1", got)
	}

	if err := g.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := readFile(t, filepath.Join(pinDir, "value")); got != "0" {
		t.Errorf("value after Close = %q, want 0", got)
	}
	if got := readFile(t, filepath.Join(root, "class", "gpio", "unexport")); got != "" {
		t.Errorf("unexport written = %q for a pin we did not export", got)
	}
}

func TestGPIO_ExportsPin(t *testing.T) {
	root := fakeGPIO(t, "2", false)
	base := filepath.Join(root, "class", "gpio")

	// Stand in for the kernel: create the pin directory once export is written.
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if data, _ := os.ReadFile(filepath.Join(base, "export")); strings.TrimSpace(string(data)) == "2" {
				_ = os.MkdirAll(filepath.Join(base, "gpio2"), 0o755)
				_ = os.WriteFile(filepath.Join(base, "gpio2", "direction"), []byte("in"), 0o644)
				_ = os.WriteFile(filepath.Join(base, "gpio2", "value"), []byte("0"), 0o644)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	g, err := openGPIO(root, 2, 2*time.Second)
	<-done
	if err != nil {
		t.Fatalf("openGPIO() error = %v", err)
	}
	if !g.exported {
		t.Error("exported = false, want true")
	}

	if err := g.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := readFile(t, filepath.Join(base, "unexport")); got != "2" {
		t.Errorf("unexport = %q, want 2", got)
	}
}

func TestGPIO_ExportNeverAppears(t *testing.T) {
	root := fakeGPIO(t, "2", false)

	_, err := openGPIO(root, 2, 30*time.Millisecond)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("openGPIO() error = %v, want ErrUnavailable", err)
	}
}

func TestGPIO_InvalidPin(t *testing.T) {
	if _, err := OpenGPIO(t.TempDir(), -1); !errors.Is(err, ErrUnavailable) {
		t.Errorf("OpenGPIO() error = %v, want ErrUnavailable", err)
	}
}

type debugRecorder struct {
	states []bool
}

func (d *debugRecorder) Debug(_ string, args ...any) {
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "on" {
			d.states = append(d.states, args[i+1].(bool))
		}
	}
}

func TestLogIndicator(t *testing.T) {
	rec := &debugRecorder{}
	ind := NewLogIndicator(rec)

	_ = ind.Set(true)  //nolint:errcheck // never fails
	_ = ind.Set(false) //nolint:errcheck // never fails

	if len(rec.states) != 2 || !rec.states[0] || rec.states[1] {
		t.Errorf("logged states = %v, want [true false]", rec.states)
	}

	if err := NewLogIndicator(nil).Set(true); err != nil {
		t.Errorf("nil logger Set() error = %v", err)
	}
}
