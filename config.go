package valve

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// Driver selects the serial backend used to open a transport.
type Driver int

const (
	DriverPortable Driver = iota // Default: go.bug.st/serial, all platforms
	DriverTermios                // Raw termios via golang.org/x/sys/unix, Linux only
)

func (d Driver) String() string {
	switch d {
	case DriverPortable:
		return "portable"
	case DriverTermios:
		return "termios"
	default:
		return "unknown"
	}
}

// ParseDriver maps a configuration string to a Driver.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "portable":
		return DriverPortable, nil
	case "termios", "native":
		return DriverTermios, nil
	default:
		return 0, ErrInvalidConfig
	}
}

// Design constants of the command protocol. They are not tunable per call.
const (
	ResponseTimeout = 2 * time.Second
	PollInterval    = 100 * time.Millisecond
)

// Config holds the configuration for a valve controller
type Config struct {
	BaudRate    int
	ReadTimeout time.Duration
	SettleDelay time.Duration
	Driver      Driver

	// Positions lists the position letters the valve accepts, e.g. "AB" for a
	// bistable valve or "ABC" for a three-position valve.
	Positions string

	// StrictMatching disables the STATE:/OK: fallback in Send.
	StrictMatching bool

	Opener    Opener
	Enumerate func() ([]PortCandidate, error)
	Logger    *slog.Logger
	Metrics   *Metrics
}

// Option is a functional option for configuring a controller
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaudRate:    9600,
		ReadTimeout: 100 * time.Millisecond,
		SettleDelay: 2 * time.Second,
		Driver:      DriverPortable,
		Positions:   "AB",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newConfig(opts []Option) (Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Config{}, err
		}
	}
	if config.Opener == nil {
		config.Opener = openerFor(config.Driver)
	}
	if config.Enumerate == nil {
		config.Enumerate = ListCandidates
	}
	return config, nil
}

// HasPosition reports whether p is one of the configured positions.
func (c Config) HasPosition(p Position) bool {
	return p != 0 && strings.IndexByte(c.Positions, byte(p)) >= 0
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if !validBaudRate(rate) {
			return ErrInvalidBaudRate
		}
		c.BaudRate = rate
		return nil
	}
}

// WithReadTimeout sets the per-read timeout of the transport
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout <= 0 || timeout > 25500*time.Millisecond {
			return ErrInvalidConfig
		}
		c.ReadTimeout = timeout
		return nil
	}
}

// WithSettleDelay sets how long to wait after opening before traffic is trusted
func WithSettleDelay(delay time.Duration) Option {
	return func(c *Config) error {
		if delay < 0 {
			return ErrInvalidConfig
		}
		c.SettleDelay = delay
		return nil
	}
}

// WithDriver selects the serial backend
func WithDriver(d Driver) Option {
	return func(c *Config) error {
		if d != DriverPortable && d != DriverTermios {
			return ErrInvalidConfig
		}
		c.Driver = d
		return nil
	}
}

// WithPositions sets the accepted position letters
func WithPositions(positions string) Option {
	return func(c *Config) error {
		positions = strings.ToUpper(strings.TrimSpace(positions))
		if positions == "" {
			return ErrInvalidConfig
		}
		for i := 0; i < len(positions); i++ {
			if positions[i] < 'A' || positions[i] > 'Z' {
				return ErrInvalidConfig
			}
		}
		c.Positions = positions
		return nil
	}
}

// WithStrictMatching makes Send accept only the expected response kind
func WithStrictMatching(strict bool) Option {
	return func(c *Config) error {
		c.StrictMatching = strict
		return nil
	}
}

// WithOpener replaces the function used to open transports
func WithOpener(o Opener) Option {
	return func(c *Config) error {
		if o == nil {
			return ErrInvalidConfig
		}
		c.Opener = o
		return nil
	}
}

// WithEnumerator replaces the discovery scan
func WithEnumerator(fn func() ([]PortCandidate, error)) Option {
	return func(c *Config) error {
		if fn == nil {
			return ErrInvalidConfig
		}
		c.Enumerate = fn
		return nil
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.Logger = logger
		return nil
	}
}

// WithMetrics attaches prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(c *Config) error {
		c.Metrics = m
		return nil
	}
}

func validBaudRate(rate int) bool {
	switch rate {
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600:
		return true
	default:
		return false
	}
}
