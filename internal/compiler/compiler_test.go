package compiler_test

import (
	"math"
	"testing"

	"github.com/synthseq/synthseq/internal/compiler"
	"github.com/synthseq/synthseq/internal/diag"
	"github.com/synthseq/synthseq/internal/parser"
)

func compileSrc(t *testing.T, src string) *compiler.Result {
	t.Helper()
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := compiler.Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return res
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCompileEmptyProgram(t *testing.T) {
	res := compileSrc(t, "")
	if res.BPM != 120 || res.EventCount != 0 || res.TotalDuration != 0 {
		t.Fatalf("res = %+v", res)
	}
}

func TestCompileMinimalMelody(t *testing.T) {
	res := compileSrc(t, "bpm 120\nseq: C4 1/4, D4 1/4")
	if len(res.Events) != 2 {
		t.Fatalf("events = %+v", res.Events)
	}
	e0, e1 := res.Events[0], res.Events[1]
	if !almostEqual(e0.T, 0) || !almostEqual(e0.Dur, 0.5) || e0.MIDI != 60 || !almostEqual(e0.Velocity, 0.8) {
		t.Errorf("e0 = %+v", e0)
	}
	if !almostEqual(e1.T, 0.5) || e1.MIDI != 62 {
		t.Errorf("e1 = %+v", e1)
	}
	if !almostEqual(e0.Freq, 261.6255653005986) {
		t.Errorf("e0.Freq = %v", e0.Freq)
	}
	if e0.Track != "" || e0.Instrument != "lead" || e0.Waveform != "sine" {
		t.Errorf("e0 instrument fields = %+v", e0)
	}
}

func TestCompileChordDoesNotWidenCursor(t *testing.T) {
	res := compileSrc(t, "bpm 120\nseq: [C4 E4 G4] 1/2, D4 1/4")
	if len(res.Events) != 4 {
		t.Fatalf("events = %+v", res.Events)
	}
	for _, e := range res.Events[:3] {
		if !almostEqual(e.T, 0) || !almostEqual(e.Dur, 1.0) {
			t.Errorf("chord event = %+v", e)
		}
	}
	last := res.Events[3]
	if !almostEqual(last.T, 1.0) || !almostEqual(last.Dur, 0.5) || last.MIDI != 62 {
		t.Errorf("last = %+v", last)
	}
}

func TestCompilePatternRepetition(t *testing.T) {
	res := compileSrc(t, "bpm 120\npattern r: C4 1/4, D4 1/4\nseq: use r x2")
	if len(res.Events) != 4 {
		t.Fatalf("events = %+v", res.Events)
	}
	wantT := []float64{0.0, 0.5, 1.0, 1.5}
	wantMIDI := []int{60, 62, 60, 62}
	for i, e := range res.Events {
		if !almostEqual(e.T, wantT[i]) || e.MIDI != wantMIDI[i] {
			t.Errorf("event %d = %+v, want t=%v midi=%v", i, e, wantT[i], wantMIDI[i])
		}
	}
}

func TestCompileTwoTracksConcurrent(t *testing.T) {
	src := "bpm 120\ninst lead sine\ninst bass square\ntrack melody inst=lead: C4 1/4\ntrack bassline inst=bass: C2 1/4"
	res := compileSrc(t, src)
	if len(res.Events) != 2 {
		t.Fatalf("events = %+v", res.Events)
	}
	for _, e := range res.Events {
		if !almostEqual(e.T, 0) || !almostEqual(e.Dur, 0.5) {
			t.Errorf("event = %+v", e)
		}
	}
	byTrack := map[string]compiler.Event{}
	for _, e := range res.Events {
		byTrack[e.Track] = e
	}
	melody, bass := byTrack["melody"], byTrack["bassline"]
	if melody.MIDI != 60 || melody.Waveform != "sine" {
		t.Errorf("melody = %+v", melody)
	}
	if bass.MIDI != 36 || bass.Waveform != "square" {
		t.Errorf("bass = %+v", bass)
	}
}

func TestCompileRepeatBlockEquivalence(t *testing.T) {
	expanded := compileSrc(t, "bpm 120\nseq: C4 1/4, C4 1/4")
	repeated := compileSrc(t, "bpm 120\nseq: x2 { C4 1/4 }")
	if len(expanded.Events) != len(repeated.Events) {
		t.Fatalf("expanded=%+v repeated=%+v", expanded.Events, repeated.Events)
	}
	for i := range expanded.Events {
		a, b := expanded.Events[i], repeated.Events[i]
		if !almostEqual(a.T, b.T) || a.MIDI != b.MIDI {
			t.Errorf("event %d: expanded=%+v repeated=%+v", i, a, b)
		}
	}
}

func TestCompileSwingShiftsOffGridOddSubdivisions(t *testing.T) {
	res := compileSrc(t, "bpm 120\ngrid 16\nswing 0.5\nseq: C4 1/16, D4 1/16, E4 1/16, F4 1/16")
	want := []float64{0.0, 0.1875, 0.25, 0.4375}
	if len(res.Events) != len(want) {
		t.Fatalf("events = %+v", res.Events)
	}
	for i, e := range res.Events {
		if !almostEqual(e.T, want[i]) {
			t.Errorf("event %d T = %v, want %v", i, e.T, want[i])
		}
	}
}

func TestApplySwingIdentityWhenZero(t *testing.T) {
	events := []compiler.Event{{T: 0.1875}, {T: 0.25}}
	out := compiler.ApplySwing(events, 0, 16, 120)
	if out[0].T != events[0].T || out[1].T != events[1].T {
		t.Errorf("expected identity, got %+v", out)
	}
}

func TestCompileDefaultVelocityAndRest(t *testing.T) {
	res := compileSrc(t, "bpm 120\nseq: r 1/4, C4 1/4")
	rest, note := res.Events[0], res.Events[1]
	if rest.Kind != compiler.EventRest || rest.HasPitch || rest.Velocity != 0 {
		t.Errorf("rest = %+v", rest)
	}
	if note.Velocity != 0.8 {
		t.Errorf("note velocity = %v, want 0.8", note.Velocity)
	}
}

func TestCompileUndefinedInstrumentReference(t *testing.T) {
	prog, err := parser.Parse("bpm 120\ntrack melody inst=ghost: C4 1/4")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = compiler.Compile(prog)
	assertDiagKind(t, err, diag.Reference)
}

func TestCompileUndefinedPatternReference(t *testing.T) {
	prog, err := parser.Parse("bpm 120\nseq: use ghost")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = compiler.Compile(prog)
	assertDiagKind(t, err, diag.Reference)
}

func TestCompileCyclicPatternUse(t *testing.T) {
	prog, err := parser.Parse("bpm 120\npattern a: use b\npattern b: use a\nseq: use a")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = compiler.Compile(prog)
	assertDiagKind(t, err, diag.Reference)
}

func assertDiagKind(t *testing.T, err error, want diag.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %v, got nil", want)
	}
	de, ok := err.(*diag.Error)
	if !ok {
		t.Fatalf("expected *diag.Error, got %T (%v)", err, err)
	}
	if de.Kind != want {
		t.Errorf("got kind %v, want %v (%v)", de.Kind, want, de)
	}
}
