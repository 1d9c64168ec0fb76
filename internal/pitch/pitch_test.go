package pitch

import "testing"

func TestParseAndMIDI(t *testing.T) {
	cases := []struct {
		in   string
		midi int
	}{
		{"C4", 60},
		{"A4", 69},
		{"C#4", 61},
		{"Db4", 61},
		{"c0", 12},
		{"B9", 131},
	}
	for _, c := range cases {
		p, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.in, err)
		}
		if got := p.MIDI(); got != c.midi {
			t.Errorf("Parse(%q).MIDI() = %d, want %d", c.in, got, c.midi)
		}
	}
}

func TestParseRejectsOutOfRange(t *testing.T) {
	for _, in := range []string{"H4", "C", "C10", "C-1", ""} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", in)
		}
	}
}

func TestToFrequency(t *testing.T) {
	if got := ToFrequency(69); got != 440 {
		t.Errorf("ToFrequency(69) = %v, want 440", got)
	}
	p, _ := Parse("A4")
	if got := ToFrequency(p.MIDI()); got != 440 {
		t.Errorf("A4 frequency = %v, want 440", got)
	}
}

func TestDurationSeconds(t *testing.T) {
	cases := []struct {
		n, d int
		bpm  float64
		want float64
	}{
		{1, 4, 120, 0.5},
		{1, 1, 60, 4},
		{1, 8, 120, 0.25},
	}
	for _, c := range cases {
		got, err := DurationSeconds(c.n, c.d, c.bpm)
		if err != nil {
			t.Fatalf("DurationSeconds(%d,%d,%v): %v", c.n, c.d, c.bpm, err)
		}
		if got != c.want {
			t.Errorf("DurationSeconds(%d,%d,%v) = %v, want %v", c.n, c.d, c.bpm, got, c.want)
		}
	}
}

func TestDurationSecondsRejectsInvalid(t *testing.T) {
	if _, err := DurationSeconds(0, 4, 120); err == nil {
		t.Error("expected error for zero numerator")
	}
	if _, err := DurationSeconds(1, 4, 0); err == nil {
		t.Error("expected error for non-positive bpm")
	}
}
