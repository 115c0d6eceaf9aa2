package valve

import (
	"errors"
	"testing"
	"time"
)

func TestWithReadTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{"100ms (default)", 100 * time.Millisecond, false},
		{"250ms (probe)", 250 * time.Millisecond, false},
		{"25500ms (max)", 25500 * time.Millisecond, false},
		{"0ms (would never return)", 0, true},
		{"25600ms (exceeds max)", 25600 * time.Millisecond, true},
		{"-100ms (negative)", -100 * time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			opt := WithReadTimeout(tt.timeout)
			err := opt(&config)
			if (err != nil) != tt.wantErr {
				t.Errorf("WithReadTimeout(%v) error = %v, wantErr %v", tt.timeout, err, tt.wantErr)
			}
			if err == nil && config.ReadTimeout != tt.timeout {
				t.Errorf("ReadTimeout = %v, want %v", config.ReadTimeout, tt.timeout)
			}
		})
	}
}

func TestWithBaudRate(t *testing.T) {
	tests := []struct {
		rate    int
		wantErr bool
	}{
		{9600, false},
		{115200, false},
		{921600, false},
		{0, true},
		{12345, true},
	}

	for _, tt := range tests {
		config := DefaultConfig()
		err := WithBaudRate(tt.rate)(&config)
		if (err != nil) != tt.wantErr {
			t.Errorf("WithBaudRate(%d) error = %v, wantErr %v", tt.rate, err, tt.wantErr)
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidBaudRate) {
			t.Errorf("WithBaudRate(%d) error = %v, want ErrInvalidBaudRate", tt.rate, err)
		}
	}
}

func TestWithPositions(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"AB", "AB", false},
		{"abc", "ABC", false},
		{" ab ", "AB", false},
		{"", "", true},
		{"A1", "", true},
		{"A?", "", true},
	}

	for _, tt := range tests {
		config := DefaultConfig()
		err := WithPositions(tt.in)(&config)
		if (err != nil) != tt.wantErr {
			t.Errorf("WithPositions(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && config.Positions != tt.want {
			t.Errorf("WithPositions(%q) = %q, want %q", tt.in, config.Positions, tt.want)
		}
	}
}

func TestHasPosition(t *testing.T) {
	config := DefaultConfig()
	if !config.HasPosition(PositionA) || !config.HasPosition(PositionB) {
		t.Error("default config should accept A and B")
	}
	if config.HasPosition(PositionCenter) {
		t.Error("default config should not accept C")
	}
	if config.HasPosition(0) {
		t.Error("zero position must never be accepted")
	}
}

func TestParseDriver(t *testing.T) {
	tests := []struct {
		in      string
		want    Driver
		wantErr bool
	}{
		{"", DriverPortable, false},
		{"portable", DriverPortable, false},
		{"Termios", DriverTermios, false},
		{"native", DriverTermios, false},
		{"bluetooth", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDriver(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDriver(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDriver(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewConfigDefaults(t *testing.T) {
	config, err := newConfig(nil)
	if err != nil {
		t.Fatalf("newConfig failed: %v", err)
	}
	if config.Opener == nil {
		t.Error("Opener should default to the driver opener")
	}
	if config.Enumerate == nil {
		t.Error("Enumerate should default to ListCandidates")
	}
	if config.BaudRate != 9600 || config.SettleDelay != 2*time.Second {
		t.Errorf("unexpected defaults: baud=%d settle=%v", config.BaudRate, config.SettleDelay)
	}

	if _, err := newConfig([]Option{WithOpener(nil)}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("WithOpener(nil) error = %v, want ErrInvalidConfig", err)
	}
	if _, err := newConfig([]Option{WithSettleDelay(-time.Second)}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("negative settle delay error = %v, want ErrInvalidConfig", err)
	}
}
