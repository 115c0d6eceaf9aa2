package valve

import (
	"context"
	"errors"
	"testing"

	"github.com/allbin/go-valve/internal/devicetest"
)

// rebootingValve answers its first query with a boot banner, as a board does
// when opening the port resets it.
func rebootingValve() *devicetest.Device {
	queries := 0
	return devicetest.New(func(cmd byte) []string {
		if cmd != '?' {
			return nil
		}
		queries++
		if queries == 1 {
			return []string{"READY"}
		}
		return []string{"STATE:A"}
	})
}

func newTestProber(t *testing.T, opts ...Option) *Prober {
	t.Helper()
	pr, err := NewProber(append([]Option{WithSettleDelay(0)}, opts...)...)
	if err != nil {
		t.Fatalf("NewProber failed: %v", err)
	}
	return pr
}

func TestProbeResendsAfterReady(t *testing.T) {
	dev := rebootingValve()
	pr := newTestProber(t, WithOpener(fakeOpener(dev)))

	result := pr.Probe(context.Background(), "/dev/ttyACM0")
	if !result.Matched {
		t.Fatalf("probe failed: %s", result.Detail)
	}
	if result.Detail != "STATE:A" {
		t.Errorf("Detail = %q, want STATE:A", result.Detail)
	}
	if got := string(dev.Writes()); got != "??" {
		t.Errorf("writes = %q, want two queries", got)
	}

	p := result.Claim()
	if p == nil {
		t.Fatal("Claim returned nil for a positive result")
	}
	if result.Claim() != nil {
		t.Error("second Claim should return nil")
	}
	if err := result.Close(); err != nil {
		t.Errorf("Close after Claim = %v", err)
	}
	if dev.Closed() {
		t.Error("claimed transport must stay open")
	}
	p.Close()
}

func TestProbeNoResponse(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full reply window")
	}

	dev := devicetest.New(nil)
	pr := newTestProber(t, WithOpener(fakeOpener(dev)))

	result := pr.Probe(context.Background(), "/dev/ttyUSB0")
	if result.Matched {
		t.Fatal("silent device should not match")
	}
	if result.Detail != noStateDetail {
		t.Errorf("Detail = %q, want %q", result.Detail, noStateDetail)
	}
	if !dev.Closed() {
		t.Error("failed probe must close the transport")
	}
	if result.Claim() != nil {
		t.Error("negative result has nothing to claim")
	}
}

func TestProbeOpenError(t *testing.T) {
	pr := newTestProber(t, WithOpener(func(string, PortSettings) (Port, error) {
		return nil, errors.New("permission denied")
	}))

	result := pr.Probe(context.Background(), "/dev/ttyUSB0")
	if result.Matched || result.Detail != "permission denied" {
		t.Errorf("result = %+v", result)
	}
}

func TestProbeUsesShortReadTimeout(t *testing.T) {
	var got PortSettings
	pr := newTestProber(t, WithOpener(func(_ string, s PortSettings) (Port, error) {
		got = s
		return nil, errors.New("stop")
	}))
	pr.Probe(context.Background(), "/dev/ttyUSB0")

	if got.ReadTimeout != probeReadTimeout || got.BaudRate != 9600 {
		t.Errorf("settings = %+v", got)
	}
}

func TestDetectHandshake(t *testing.T) {
	candidates := []PortCandidate{
		{Name: "/dev/ttyS0", Description: "Standard Serial Port"},
		{Name: "/dev/ttyUSB0", Product: "CH340", VID: 0x1A86, IsUSB: true},
		{Name: "/dev/ttyACM0", Product: "Arduino Uno", VID: 0x2341, IsUSB: true},
	}
	devices := map[string]*devicetest.Device{
		"/dev/ttyUSB0": devicetest.NewValve("AB"),
	}

	var opened []string
	pr := newTestProber(t,
		WithEnumerator(func() ([]PortCandidate, error) { return candidates, nil }),
		WithOpener(func(name string, _ PortSettings) (Port, error) {
			opened = append(opened, name)
			if dev, ok := devices[name]; ok {
				return dev, nil
			}
			return nil, errors.New("no such device")
		}),
	)

	d, err := pr.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	defer d.Result.Close()

	if d.Mode != ModeHandshake {
		t.Fatalf("Mode = %v, want handshake", d.Mode)
	}
	if d.Candidate.Name != "/dev/ttyUSB0" {
		t.Errorf("Candidate = %s, want /dev/ttyUSB0", d.Candidate.Name)
	}
	// Highest score first, zero-scored candidates skipped
	if len(opened) != 2 || opened[0] != "/dev/ttyACM0" {
		t.Errorf("probe order = %v", opened)
	}
	if d.Candidates[0].Name != "/dev/ttyACM0" || d.Candidates[2].Name != "/dev/ttyS0" {
		t.Errorf("ranking = %v", d.Candidates)
	}
}

func TestDetectSignatureAndNone(t *testing.T) {
	failOpen := WithOpener(func(string, PortSettings) (Port, error) {
		return nil, errors.New("busy")
	})

	scored := []PortCandidate{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", Manufacturer: "FTDI", VID: 0x0403, IsUSB: true},
	}
	pr := newTestProber(t, failOpen, WithEnumerator(func() ([]PortCandidate, error) { return scored, nil }))
	d, err := pr.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if d.Mode != ModeSignature || d.Candidate.Name != "/dev/ttyUSB0" {
		t.Errorf("detection = %v %s, want signature /dev/ttyUSB0", d.Mode, d.Candidate.Name)
	}

	var opened int
	plain := []PortCandidate{{Name: "/dev/ttyS0"}, {Name: "/dev/ttyS1"}}
	pr = newTestProber(t,
		WithOpener(func(string, PortSettings) (Port, error) {
			opened++
			return nil, errors.New("busy")
		}),
		WithEnumerator(func() ([]PortCandidate, error) { return plain, nil }),
	)
	d, err = pr.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if d.Mode != ModeNone {
		t.Errorf("Mode = %v, want none", d.Mode)
	}
	if opened != 2 {
		t.Errorf("probed %d ports, want all 2 when nothing scored", opened)
	}
}

func TestDetectEnumerationError(t *testing.T) {
	pr := newTestProber(t, WithEnumerator(func() ([]PortCandidate, error) {
		return nil, errors.New("sysfs unavailable")
	}))
	if _, err := pr.Detect(context.Background()); err == nil {
		t.Error("expected enumeration error")
	}
}
