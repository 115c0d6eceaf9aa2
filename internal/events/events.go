// Package events publishes valve activity to NATS.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/sequence"
)

// Event types
const (
	EventConnected        = "connected"
	EventDisconnected     = "disconnected"
	EventHardware         = "hardware_event"
	EventSequenceStep     = "sequence_step"
	EventSequenceFinished = "sequence_finished"
)

// Event is the flat JSON document published for every event.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Type      string         `json:"type"`
	Instance  string         `json:"instance"`
	Port      string         `json:"port,omitempty"`
	Position  string         `json:"pos,omitempty"`
	Message   string         `json:"msg,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Publisher sends events to one subject. A nil *Publisher is valid and
// publishes nothing.
type Publisher struct {
	publish   func(subject string, data []byte) error
	connected func() bool
	subject   string
	instance  string
	logger    *slog.Logger
}

// PublisherConfig contains configuration for Publisher
type PublisherConfig struct {
	Conn     *nats.Conn
	Subject  string // e.g. "valve.events.bench-01"
	Instance string
	Logger   *slog.Logger
}

// Connect dials NATS with reconnect logging.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(5 * time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", "err", err)
			}
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Info("Connected to NATS", "url", url)
	return conn, nil
}

// NewPublisher returns nil when cfg has no connection, which disables
// publishing.
func NewPublisher(cfg *PublisherConfig) *Publisher {
	if cfg == nil || cfg.Conn == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		publish:   cfg.Conn.Publish,
		connected: cfg.Conn.IsConnected,
		subject:   cfg.Subject,
		instance:  cfg.Instance,
		logger:    logger,
	}
}

// Publish sends an event. Safe to call on nil receiver.
func (p *Publisher) Publish(event Event) {
	if p == nil || !p.connected() {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Instance == "" {
		event.Instance = p.instance
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", "err", err, "type", event.Type)
		return
	}
	if err := p.publish(p.subject, data); err != nil {
		p.logger.Warn("Failed to publish event", "err", err, "type", event.Type)
		return
	}
	p.logger.Debug("Published event", "type", event.Type, "port", event.Port)
}

func (p *Publisher) PublishConnected(port string) {
	p.Publish(Event{Type: EventConnected, Port: port, Message: "Connected to valve controller"})
}

func (p *Publisher) PublishDisconnected(port string) {
	p.Publish(Event{Type: EventDisconnected, Port: port, Message: "Disconnected from valve controller"})
}

// PublishHardwareEvent reports a manual position change.
func (p *Publisher) PublishHardwareEvent(port string, pos valve.Position) {
	p.Publish(Event{
		Type:     EventHardware,
		Port:     port,
		Position: pos.String(),
		Message:  "Valve moved by hardware control",
	})
}

// PublishStep reports one acknowledged sequence step.
func (p *Publisher) PublishStep(port string, pr sequence.Progress) {
	p.Publish(Event{
		Type:     EventSequenceStep,
		Port:     port,
		Position: pr.Step.Position.String(),
		Details: map[string]any{
			"loop":        pr.Loop,
			"step":        pr.Index,
			"total":       pr.Total,
			"duration_ms": pr.Step.Duration.Milliseconds(),
		},
	})
}

// PublishFinished reports the end of a run.
func (p *Publisher) PublishFinished(port string, res sequence.Result) {
	details := map[string]any{
		"outcome": res.Outcome.String(),
		"loops":   res.Loops,
	}
	if res.Cause != sequence.CauseNone {
		details["cause"] = res.Cause.String()
	}
	msg := "Sequence " + res.Outcome.String()
	if res.Err != nil {
		msg = res.Err.Error()
	}
	p.Publish(Event{Type: EventSequenceFinished, Port: port, Message: msg, Details: details})
}

// BuildSubject constructs {prefix}.events.{instance}
func BuildSubject(prefix, instance string) string {
	if prefix == "" {
		prefix = "valve"
	}
	return prefix + ".events." + instance
}
