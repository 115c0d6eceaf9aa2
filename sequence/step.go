package sequence

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/allbin/go-valve"
)

// Step duration bounds
const (
	MinDuration = 50 * time.Millisecond
	MaxDuration = 120 * time.Second
)

// Step holds the valve in Position for Duration.
type Step struct {
	Position valve.Position
	Duration time.Duration
}

// NewStep validates the duration range.
func NewStep(p valve.Position, d time.Duration) (Step, error) {
	if p == 0 {
		return Step{}, valve.ErrInvalidPosition
	}
	if d < MinDuration || d > MaxDuration {
		return Step{}, fmt.Errorf("%w: %v", ErrInvalidDuration, d)
	}
	return Step{Position: p, Duration: d}, nil
}

func (s Step) String() string {
	return fmt.Sprintf("%s for %.2fs", s.Position, s.Duration.Seconds())
}

// ParseSeconds reads a duration typed as seconds, accepting a decimal comma.
func ParseSeconds(s string) (time.Duration, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number of seconds", ErrInvalidDuration, s)
	}
	return FromSeconds(secs)
}

// FromSeconds converts seconds to a step duration with millisecond
// resolution. The range is checked on the value as given, before rounding.
func FromSeconds(secs float64) (time.Duration, error) {
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("%w: %v is not a number of seconds", ErrInvalidDuration, secs)
	}
	if secs < MinDuration.Seconds() || secs > MaxDuration.Seconds() {
		return 0, fmt.Errorf("%w: %vs", ErrInvalidDuration, secs)
	}
	return time.Duration(math.Round(secs*1000)) * time.Millisecond, nil
}
