// Package tonegen is a reference note-sink: a small voice-pool synthesizer
// that turns dispatched compiler.Events into PCM frames. It is the one
// concrete implementation of scheduler.NoteSink / scheduler.AudioBackend
// that this repository ships, grounded on internal/chiptune's voice/
// envelope design (voice, envState, stealVoice, advanceEnv) but
// generalized from chiptune's four fixed NES-style waveforms to the DSL's
// sine/square/sawtooth/triangle enum, and from a separate NoteOn/NoteOff
// API to the spec's single Dispatch(event, when) call: each voice carries
// its own duration and self-releases instead of waiting for a note-off.
package tonegen

import (
	"context"
	"math"
	"sync"

	"github.com/synthseq/synthseq/internal/ast"
	"github.com/synthseq/synthseq/internal/compiler"
	"github.com/synthseq/synthseq/internal/effects"
	"github.com/synthseq/synthseq/internal/scheduler"
)

const defaultVoiceCount = 32

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type voice struct {
	active    bool
	id        uint64
	age       int
	durFrames int
	waveform  string
	freq      float64
	phase     float64
	velocity  float64
	gain      float64
	adsr      ast.ADSR
	env       float64
	envState  envState
}

type pendingNote struct {
	ev   compiler.Event
	when float64
}

// Mixer is a software synthesizer and, in the same type, the frame-accurate
// AudioClock that the scheduler reads: RenderFrame (via Process) is the
// only thing that advances time, so the clock and the audio it describes
// can never drift apart.
type Mixer struct {
	mu         sync.Mutex
	sampleRate float64
	voices     []voice
	nextID     uint64
	pending    []pendingNote
	frames     uint64

	dcPrevInL, dcPrevOutL float64
	dcPrevInR, dcPrevOutR float64

	// MasterChain, if set, post-processes every rendered frame. The DSL
	// has no effect directive; this exists purely for hosts that want a
	// delay or reverb tail on the way out, per SetMasterChain.
	MasterChain *effects.Chain
}

// SetMasterChain installs (or clears, with nil) an optional post-processing
// chain applied to every rendered frame after DC blocking.
func (m *Mixer) SetMasterChain(chain *effects.Chain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MasterChain = chain
}

var (
	_ scheduler.AudioClock   = (*Mixer)(nil)
	_ scheduler.NoteSink     = (*Mixer)(nil)
	_ scheduler.AudioBackend = (*Mixer)(nil)
)

// NewMixer builds a Mixer rendering at sampleRate Hz with a fixed voice
// pool; voices beyond that count are stolen from the oldest releasing (or
// else oldest active) voice, as in chiptune's stealVoice.
func NewMixer(sampleRate int) *Mixer {
	return &Mixer{
		sampleRate: float64(sampleRate),
		voices:     make([]voice, defaultVoiceCount),
	}
}

// Now implements scheduler.AudioClock: monotonic seconds derived from
// frames actually rendered.
func (m *Mixer) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.frames) / m.sampleRate
}

// Resume implements scheduler.AudioBackend. The software mixer has no
// suspended state to resume; it accepts scheduled work immediately.
func (m *Mixer) Resume(ctx context.Context) error {
	return nil
}

// CancelAll implements scheduler.AudioBackend: discard pending dispatches
// and hard-stop every active voice.
func (m *Mixer) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	for i := range m.voices {
		m.voices[i].active = false
		m.voices[i].env = 0
	}
}

// Dispatch implements scheduler.NoteSink: queue ev to sound at when. Rest
// events never reach here (the scheduler filters them).
func (m *Mixer) Dispatch(ev compiler.Event, when float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, pendingNote{ev: ev, when: when})
}

// Process implements internal/audio.SampleSource: fill dst with
// interleaved stereo float32 samples, one RenderFrame pair per two slots.
func (m *Mixer) Process(dst []float32) {
	for i := 0; i+1 < len(dst); i += 2 {
		l, r := m.RenderFrame()
		dst[i] = l
		dst[i+1] = r
	}
}

// RenderFrame advances the mixer by one sample frame, activating any
// pending notes now due and mixing all active voices.
func (m *Mixer) RenderFrame() (float32, float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := float64(m.frames) / m.sampleRate
	if len(m.pending) > 0 {
		remaining := m.pending[:0]
		for _, p := range m.pending {
			if p.when <= now {
				m.activateVoice(p.ev)
			} else {
				remaining = append(remaining, p)
			}
		}
		m.pending = remaining
	}

	var l, r float64
	for i := range m.voices {
		v := &m.voices[i]
		if !v.active {
			continue
		}
		v.age++
		if v.age >= v.durFrames && v.envState < envRelease {
			v.envState = envRelease
		}
		env := m.advanceEnv(v)
		if !v.active {
			continue
		}
		sample := waveformSample(v)
		v.phase += v.freq / m.sampleRate
		if v.phase >= 1 {
			v.phase -= math.Floor(v.phase)
		}
		sig := sample * env * v.velocity * v.gain
		l += sig
		r += sig
	}
	l = m.dcBlockL(l)
	r = m.dcBlockR(r)
	m.frames++
	outL, outR := float32(clamp(l, -1, 1)), float32(clamp(r, -1, 1))
	if m.MasterChain != nil {
		outL, outR = m.MasterChain.Process(outL, outR)
	}
	return outL, outR
}

func (m *Mixer) activateVoice(ev compiler.Event) {
	slot := m.stealVoice()
	v := &m.voices[slot]
	adsr := ast.DefaultADSR()
	if ev.ADSR != nil {
		adsr = *ev.ADSR
	}
	gain := 1.0
	if ev.Gain != nil {
		gain = *ev.Gain
	}
	*v = voice{
		active:    true,
		id:        m.nextID,
		waveform:  ev.Waveform,
		freq:      ev.Freq,
		velocity:  ev.Velocity,
		gain:      gain,
		adsr:      adsr,
		envState:  envAttack,
		durFrames: int(ev.Dur * m.sampleRate),
	}
	m.nextID++
}

func (m *Mixer) stealVoice() int {
	for i := range m.voices {
		if !m.voices[i].active {
			return i
		}
	}
	oldestRelease, oldestReleaseAge := -1, -1
	oldestActive, oldestActiveAge := 0, -1
	for i := range m.voices {
		v := &m.voices[i]
		if v.envState == envRelease && v.age > oldestReleaseAge {
			oldestRelease, oldestReleaseAge = i, v.age
		}
		if v.age > oldestActiveAge {
			oldestActive, oldestActiveAge = i, v.age
		}
	}
	if oldestRelease >= 0 {
		return oldestRelease
	}
	return oldestActive
}

func (m *Mixer) advanceEnv(v *voice) float64 {
	sr := m.sampleRate
	switch v.envState {
	case envAttack:
		step := stepFor(1.0, v.adsr.Attack, sr)
		v.env += step
		if v.env >= 1 {
			v.env = 1
			v.envState = envDecay
		}
	case envDecay:
		step := stepFor(1-v.adsr.Sustain, v.adsr.Decay, sr)
		v.env -= step
		if v.env <= v.adsr.Sustain {
			v.env = v.adsr.Sustain
			v.envState = envSustain
		}
	case envSustain:
	case envRelease:
		step := stepFor(v.adsr.Sustain, v.adsr.Release, sr)
		v.env -= step
		if v.env <= 0.0001 {
			v.env = 0
			v.envState = envOff
			v.active = false
		}
	case envOff:
		v.active = false
		v.env = 0
	}
	return v.env
}

// stepFor returns the per-sample envelope increment needed to cross range
// in seconds seconds, defaulting to an immediate (one-sample) transition
// when seconds is non-positive.
func stepFor(rangeAmt, seconds, sampleRate float64) float64 {
	if seconds <= 0 {
		return rangeAmt
	}
	step := rangeAmt / (seconds * sampleRate)
	if step <= 0 {
		return rangeAmt
	}
	return step
}

const twoPi = math.Pi * 2

func waveformSample(v *voice) float64 {
	phase := v.phase
	switch v.waveform {
	case "sine":
		return math.Sin(twoPi * phase)
	case "square":
		if phase < 0.5 {
			return 1
		}
		return -1
	case "sawtooth":
		return 2*phase - 1
	case "triangle":
		return 2*math.Abs(2*phase-1) - 1
	default:
		return 0
	}
}

func (m *Mixer) dcBlockL(x float64) float64 {
	const r = 0.995
	y := x - m.dcPrevInL + r*m.dcPrevOutL
	m.dcPrevInL = x
	m.dcPrevOutL = y
	return y
}

func (m *Mixer) dcBlockR(x float64) float64 {
	const r = 0.995
	y := x - m.dcPrevInR + r*m.dcPrevOutR
	m.dcPrevInR = x
	m.dcPrevOutR = y
	return y
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
