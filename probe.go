package valve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Handshake timing
const (
	probeReadTimeout = 250 * time.Millisecond
	probeSettleMax   = 1800 * time.Millisecond
	probeReplyWindow = 1500 * time.Millisecond
)

const noStateDetail = "No STATE response"

// DetectMode tells how Detect settled on a port.
type DetectMode int

const (
	ModeNone DetectMode = iota
	ModeHandshake
	ModeSignature
)

func (m DetectMode) String() string {
	switch m {
	case ModeHandshake:
		return "handshake"
	case ModeSignature:
		return "signature"
	default:
		return "none"
	}
}

// ProbeResult is the outcome of one handshake attempt. A positive result
// keeps the settled transport open until Claim or Close.
type ProbeResult struct {
	Port    string
	Matched bool
	Detail  string

	conn Port
}

// Claim hands the open transport over to the caller. It returns nil for a
// negative result or when already claimed.
func (r *ProbeResult) Claim() Port {
	p := r.conn
	r.conn = nil
	return p
}

// Close releases the transport if nobody claimed it.
func (r *ProbeResult) Close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

// Detection is the outcome of a full discovery pass.
type Detection struct {
	Mode       DetectMode
	Candidate  PortCandidate
	Result     *ProbeResult
	Candidates []PortCandidate
}

// Prober talks to candidate ports to find a valve controller.
type Prober struct {
	config Config
	logger *slog.Logger
}

// NewProber creates a prober sharing the controller options.
func NewProber(opts ...Option) (*Prober, error) {
	config, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Prober{config: config, logger: config.Logger}, nil
}

// Probe opens name, lets it settle and asks for the current state. Failures
// are reported in the result, never as an error.
func (pr *Prober) Probe(ctx context.Context, name string) *ProbeResult {
	result := &ProbeResult{Port: name}

	p, err := pr.config.Opener(name, PortSettings{
		BaudRate:    pr.config.BaudRate,
		ReadTimeout: probeReadTimeout,
	})
	if err != nil {
		result.Detail = err.Error()
		return result
	}

	delay := pr.config.SettleDelay
	if delay > probeSettleMax {
		delay = probeSettleMax
	}
	if err := settle(ctx, p, delay); err != nil {
		p.Close()
		result.Detail = err.Error()
		return result
	}

	matched, detail := pr.handshake(ctx, p)
	result.Matched = matched
	result.Detail = detail
	if !matched {
		p.Close()
		pr.logger.Debug("Probe failed", "port", name, "detail", detail)
		return result
	}

	result.conn = p
	pr.logger.Info("Valve controller answered", "port", name, "detail", detail)
	return result
}

// handshake sends the query and waits for a STATE: line. A first READY means
// the device rebooted after our query arrived, so the query is sent again.
func (pr *Prober) handshake(ctx context.Context, p Port) (bool, string) {
	if _, err := p.Write([]byte{QueryCommand}); err != nil {
		return false, err.Error()
	}

	deadline := time.Now().Add(probeReplyWindow)
	buf := make([]byte, 128)
	sawReady := false
	var lines lineSplitter

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false, ctx.Err().Error()
		}

		n, err := p.Read(buf)
		for _, line := range lines.feed(buf[:n]) {
			switch {
			case strings.HasPrefix(line, markerState):
				return true, line
			case line == markerBoot && !sawReady:
				sawReady = true
				if _, err := p.Write([]byte{QueryCommand}); err != nil {
					return false, err.Error()
				}
			}
		}
		if err != nil {
			if isClosedError(err) {
				return false, err.Error()
			}
			time.Sleep(readRetryDelay)
		}
	}
	return false, noStateDetail
}

// Detect ranks every candidate and probes them in order. The first one to
// complete the handshake wins. Without a handshake the best scoring candidate
// is reported by signature alone.
func (pr *Prober) Detect(ctx context.Context) (*Detection, error) {
	candidates, err := pr.config.Enumerate()
	if err != nil {
		return nil, err
	}

	ranked := make([]PortCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Score(ranked[i]) > Score(ranked[j])
	})

	detection := &Detection{Mode: ModeNone, Candidates: ranked}

	var targets []PortCandidate
	for _, c := range ranked {
		if Score(c) > 0 {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		targets = ranked
	}

	for _, c := range targets {
		if err := ctx.Err(); err != nil {
			return detection, fmt.Errorf("detection cancelled: %w", err)
		}
		result := pr.Probe(ctx, c.Name)
		if result.Matched {
			detection.Mode = ModeHandshake
			detection.Candidate = c
			detection.Result = result
			return detection, nil
		}
	}

	if len(ranked) > 0 && Score(ranked[0]) > 0 {
		detection.Mode = ModeSignature
		detection.Candidate = ranked[0]
	}
	return detection, nil
}
