// Package compiler expands a parsed ast.Program into a sorted, immutable
// event list, resolving instrument and pattern references and applying the
// swing transform. Like internal/ast, Event is a tagged struct rather than
// an interface: EventNote and EventRest share one shape, switched by Kind.
package compiler

import "github.com/synthseq/synthseq/internal/ast"

// EventKind discriminates an Event.
type EventKind int

const (
	EventNote EventKind = iota
	EventRest
)

// Event is one scheduled unit of sound, per spec §3. HasPitch is false for
// rests, in which case MIDI and Freq carry no meaning (the ⊥ of the spec).
type Event struct {
	T        float64
	Dur      float64
	Kind     EventKind
	HasPitch bool
	MIDI     int
	Freq     float64
	Velocity float64

	Instrument string
	Waveform   string
	Track      string // empty means "no track" (top-level sequence)
	Gain       *float64
	ADSR       *ast.ADSR
}

// Result is the immutable output of Compile.
type Result struct {
	Events        []Event
	BPM           float64
	TotalDuration float64
	EventCount    int
	Settings      ast.Settings
}

func totalDuration(events []Event) float64 {
	var max float64
	for _, e := range events {
		if end := e.T + e.Dur; end > max {
			max = end
		}
	}
	return max
}
