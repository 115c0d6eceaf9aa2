package sequence

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/allbin/go-valve"
)

// Definition is a sequence described in a YAML file:
//
//	name: purge
//	loop: false
//	steps:
//	  - id: open
//	    position: A
//	    duration: 1.5
//	    next: close
//	  - id: close
//	    position: B
//	    duration: 500ms
//
// Durations are seconds or Go duration strings. Steps without coordinates are
// laid out top to bottom in file order.
type Definition struct {
	Name  string    `yaml:"name"`
	Loop  bool      `yaml:"loop"`
	Steps []StepDef `yaml:"steps"`
}

// StepDef is one entry of a Definition.
type StepDef struct {
	ID       string   `yaml:"id"`
	Position string   `yaml:"position"`
	Duration Duration `yaml:"duration"`
	X        *float64 `yaml:"x,omitempty"`
	Y        *float64 `yaml:"y,omitempty"`
	Next     string   `yaml:"next,omitempty"`
}

// Duration accepts either a number of seconds or a Go duration string.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}

	switch node.ShortTag() {
	case "!!int", "!!float":
		parsed, err := ParseSeconds(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*d = Duration(parsed)
		return nil
	}

	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		if secs, serr := ParseSeconds(node.Value); serr == nil {
			*d = Duration(secs)
			return nil
		}
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(parsed)
	return nil
}

// LoadFile reads and parses a definition file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse sequence file: %w", err)
	}
	if len(def.Steps) == 0 {
		return nil, ErrEmptySequence
	}
	return &def, nil
}

// Build turns the definition into a Sequence, applying the usual edge rules
// to every next link.
func (d *Definition) Build() (*Sequence, error) {
	seq := New()
	ids := make(map[string]NodeID, len(d.Steps))
	keys := make([]string, len(d.Steps))

	for i, sd := range d.Steps {
		key := sd.ID
		if key == "" {
			key = fmt.Sprintf("#%d", i+1)
		}
		keys[i] = key
		if _, dup := ids[key]; dup {
			return nil, fmt.Errorf("step %s: duplicate id", key)
		}

		pos, err := valve.ParsePosition(sd.Position)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", key, err)
		}
		step, err := NewStep(pos, time.Duration(sd.Duration))
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", key, err)
		}

		if sd.X == nil && sd.Y == nil {
			ids[key] = seq.Append(step)
			continue
		}
		var x, y float64
		if sd.X != nil {
			x = *sd.X
		}
		if sd.Y != nil {
			y = *sd.Y
		}
		ids[key] = seq.Add(step, x, y)
	}

	for i, sd := range d.Steps {
		if sd.Next == "" {
			continue
		}
		to, ok := ids[sd.Next]
		if !ok {
			return nil, fmt.Errorf("step %s: next %q: %w", keys[i], sd.Next, ErrUnknownNode)
		}
		if err := seq.Connect(ids[keys[i]], to); err != nil {
			return nil, fmt.Errorf("step %s: next %q: %w", keys[i], sd.Next, err)
		}
	}
	return seq, nil
}
