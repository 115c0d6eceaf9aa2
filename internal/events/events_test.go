package events

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/sequence"
)

type captured struct {
	subject string
	event   Event
}

func newTestPublisher(t *testing.T, online bool) (*Publisher, *[]captured) {
	t.Helper()
	var out []captured
	p := &Publisher{
		publish: func(subject string, data []byte) error {
			var e Event
			if err := json.Unmarshal(data, &e); err != nil {
				t.Fatalf("published invalid JSON: %v", err)
			}
			out = append(out, captured{subject, e})
			return nil
		},
		connected: func() bool { return online },
		subject:   "valve.events.bench",
		instance:  "bench",
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return p, &out
}

func TestNilPublisher(t *testing.T) {
	var p *Publisher
	p.PublishConnected("/dev/ttyACM0")
	p.PublishHardwareEvent("/dev/ttyACM0", valve.PositionA)

	if NewPublisher(nil) != nil || NewPublisher(&PublisherConfig{}) != nil {
		t.Error("publisher without connection should be nil")
	}
}

func TestPublishFillsDefaults(t *testing.T) {
	p, out := newTestPublisher(t, true)
	p.PublishHardwareEvent("/dev/ttyACM0", valve.PositionB)

	if len(*out) != 1 {
		t.Fatalf("published %d events, want 1", len(*out))
	}
	got := (*out)[0]
	if got.subject != "valve.events.bench" {
		t.Errorf("subject = %q", got.subject)
	}
	if got.event.Type != EventHardware || got.event.Position != "B" || got.event.Instance != "bench" {
		t.Errorf("event = %+v", got.event)
	}
	if got.event.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestPublishSkippedWhileOffline(t *testing.T) {
	p, out := newTestPublisher(t, false)
	p.PublishConnected("/dev/ttyACM0")
	if len(*out) != 0 {
		t.Errorf("published %d events while offline", len(*out))
	}
}

func TestPublishSequenceEvents(t *testing.T) {
	p, out := newTestPublisher(t, true)

	p.PublishStep("/dev/ttyACM0", sequence.Progress{
		Loop: 2, Index: 1, Total: 4,
		Step: sequence.Step{Position: valve.PositionA, Duration: 1500 * time.Millisecond},
	})
	p.PublishFinished("/dev/ttyACM0", sequence.Result{
		Outcome: sequence.Failed,
		Loops:   2,
		Err:     errors.New("step 2 (B for 1.00s): no response from valve controller"),
	})

	if len(*out) != 2 {
		t.Fatalf("published %d events, want 2", len(*out))
	}
	step := (*out)[0].event
	if step.Details["duration_ms"] != float64(1500) || step.Details["loop"] != float64(2) {
		t.Errorf("step details = %v", step.Details)
	}
	fin := (*out)[1].event
	if fin.Details["outcome"] != "failed" || fin.Message == "" {
		t.Errorf("finished event = %+v", fin)
	}
	if _, ok := fin.Details["cause"]; ok {
		t.Error("cause should be omitted when none")
	}
}

func TestPublishErrorIsLogged(t *testing.T) {
	p, _ := newTestPublisher(t, true)
	p.publish = func(string, []byte) error { return errors.New("slow consumer") }
	p.PublishDisconnected("/dev/ttyACM0")
}

func TestBuildSubject(t *testing.T) {
	if got := BuildSubject("lab", "bench-01"); got != "lab.events.bench-01" {
		t.Errorf("BuildSubject = %q", got)
	}
	if got := BuildSubject("", "x"); got != "valve.events.x" {
		t.Errorf("BuildSubject default = %q", got)
	}
}
