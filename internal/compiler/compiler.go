package compiler

import (
	"sort"
	"strings"

	"github.com/synthseq/synthseq/internal/ast"
	"github.com/synthseq/synthseq/internal/diag"
	"github.com/synthseq/synthseq/internal/pitch"
)

const defaultVelocity = 0.8

type compiler struct {
	bpm         float64
	instruments map[string]ast.Instrument
	patterns    map[string]ast.Pattern
	expanding   []string // pattern-use expansion stack, for cycle detection
	events      []Event
}

// Compile expands prog into a sorted event list, per spec §4.4. The default
// instrument is prog.Instruments[0] (synthesized by the parser if the
// source declared none).
func Compile(prog *ast.Program) (*Result, error) {
	c := &compiler{
		bpm:         prog.BPM,
		instruments: make(map[string]ast.Instrument, len(prog.Instruments)),
		patterns:    make(map[string]ast.Pattern, len(prog.Patterns)),
	}
	for _, inst := range prog.Instruments {
		c.instruments[inst.Name] = inst
	}
	for _, pat := range prog.Patterns {
		c.patterns[pat.Name] = pat
	}

	defaultInst := prog.Instruments[0]

	if prog.HasSequence {
		cursor := 0.0
		if err := c.walkItems(prog.Sequence, &cursor, defaultInst, ""); err != nil {
			return nil, err
		}
	}

	for _, trk := range prog.Tracks {
		inst, ok := c.instruments[trk.Instrument]
		if !ok {
			return nil, diag.New(diag.Reference, trk.Line, trk.Column,
				"track %q references undefined instrument %q (%s)", trk.Name, trk.Instrument, availableNames(c.instruments))
		}
		cursor := 0.0
		if err := c.walkItems(trk.Body, &cursor, inst, trk.Name); err != nil {
			return nil, err
		}
	}

	sortEvents(c.events)

	settings := prog.Settings
	events := c.events
	if settings.Swing > 0 {
		events = ApplySwing(events, settings.Swing, settings.Grid, prog.BPM)
	}

	return &Result{
		Events:        events,
		BPM:           prog.BPM,
		TotalDuration: totalDuration(events),
		EventCount:    len(events),
		Settings:      settings,
	}, nil
}

func (c *compiler) walkItems(items []ast.Item, cursor *float64, inst ast.Instrument, track string) error {
	for _, item := range items {
		if err := c.walkItem(item, cursor, inst, track); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) walkItem(item ast.Item, cursor *float64, inst ast.Instrument, track string) error {
	switch item.Kind {
	case ast.ItemNote:
		dur, err := pitch.DurationSeconds(item.Duration.Num, item.Duration.Den, c.bpm)
		if err != nil {
			return diag.New(diag.Value, item.Line, item.Column, "%s", err.Error())
		}
		vel := defaultVelocity
		if item.Velocity != nil {
			vel = *item.Velocity
		}
		p := item.Pitches[0]
		midi := p.MIDI()
		c.emit(Event{
			T: *cursor, Dur: dur, Kind: EventNote, HasPitch: true,
			MIDI: midi, Freq: pitch.ToFrequency(midi), Velocity: vel,
			Instrument: inst.Name, Waveform: inst.Waveform, Track: track,
			Gain: inst.Gain, ADSR: inst.ADSR,
		})
		*cursor += dur

	case ast.ItemRest:
		dur, err := pitch.DurationSeconds(item.Duration.Num, item.Duration.Den, c.bpm)
		if err != nil {
			return diag.New(diag.Value, item.Line, item.Column, "%s", err.Error())
		}
		c.emit(Event{
			T: *cursor, Dur: dur, Kind: EventRest,
			Instrument: inst.Name, Waveform: inst.Waveform, Track: track,
			Gain: inst.Gain, ADSR: inst.ADSR,
		})
		*cursor += dur

	case ast.ItemChord:
		dur, err := pitch.DurationSeconds(item.Duration.Num, item.Duration.Den, c.bpm)
		if err != nil {
			return diag.New(diag.Value, item.Line, item.Column, "%s", err.Error())
		}
		vel := defaultVelocity
		if item.Velocity != nil {
			vel = *item.Velocity
		}
		for _, p := range item.Pitches {
			midi := p.MIDI()
			c.emit(Event{
				T: *cursor, Dur: dur, Kind: EventNote, HasPitch: true,
				MIDI: midi, Freq: pitch.ToFrequency(midi), Velocity: vel,
				Instrument: inst.Name, Waveform: inst.Waveform, Track: track,
				Gain: inst.Gain, ADSR: inst.ADSR,
			})
		}
		*cursor += dur

	case ast.ItemRepeatBlock:
		for i := 0; i < item.Count; i++ {
			if err := c.walkItems(item.Body, cursor, inst, track); err != nil {
				return err
			}
		}

	case ast.ItemPatternUse:
		pat, ok := c.patterns[item.PatternName]
		if !ok {
			return diag.New(diag.Reference, item.Line, item.Column,
				"use references undefined pattern %q (%s)", item.PatternName, availableNames(c.patterns))
		}
		if err := c.pushExpansion(pat.Name, item.Line, item.Column); err != nil {
			return err
		}
		for i := 0; i < item.Repetitions; i++ {
			if err := c.walkItems(pat.Body, cursor, inst, track); err != nil {
				c.popExpansion()
				return err
			}
		}
		c.popExpansion()
	}
	return nil
}

func (c *compiler) pushExpansion(name string, line, col int) error {
	for _, n := range c.expanding {
		if n == name {
			return diag.New(diag.Reference, line, col, "cyclic pattern use: %s -> %s", strings.Join(c.expanding, " -> "), name)
		}
	}
	c.expanding = append(c.expanding, name)
	return nil
}

func (c *compiler) popExpansion() {
	c.expanding = c.expanding[:len(c.expanding)-1]
}

func (c *compiler) emit(e Event) {
	c.events = append(c.events, e)
}

// sortEvents orders by t, breaking ties by (track, midi) per spec §3.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.T != b.T {
			return a.T < b.T
		}
		if a.Track != b.Track {
			return a.Track < b.Track
		}
		return a.MIDI < b.MIDI
	})
}

func availableNames[T any](m map[string]T) string {
	if len(m) == 0 {
		return "none defined"
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return "defined: " + strings.Join(names, ", ")
}
