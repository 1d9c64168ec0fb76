// Package scheduler drives compiled events against a real-time audio clock:
// a lookahead loop, loop-boundary phase locking, and per-track mute/solo
// filtering, guarded by one mutex the way the teacher's player.go guards
// its playback state with p.mu.
package scheduler

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/synthseq/synthseq/internal/compiler"
)

// ScheduleAheadSec is the lookahead window; LookaheadMS is the tick period.
// Both are fixed per spec §4.5.
const (
	ScheduleAheadSec = 0.2
	LookaheadMS      = 25
)

// TransportState is an observability snapshot of the transport, handed to
// state-change listeners.
type TransportState struct {
	Playing              bool
	StartTime            float64
	NextIndex            int
	CurrentLoopIteration int
	LoopEnabled          bool
	LoopDurationSec      float64
	BPM                  float64
	MutedTracks          []string
	SoloedTracks         []string
}

// Config configures a new Transport. Clock and Sink are required; Backend
// may be nil (Resume/CancelAll become no-ops).
type Config struct {
	Events      []compiler.Event
	BPM         float64
	LoopBars    int
	LoopEnabled bool
	Clock       AudioClock
	Sink        NoteSink
	Backend     AudioBackend
}

// Transport is the mutable playback state described in spec §4.5. All
// fields are private; every method serializes through mu, so a single
// Transport may be driven by ticks and mutated by the host concurrently.
type Transport struct {
	mu sync.Mutex

	events          []compiler.Event
	bpm             float64
	loopBars        int
	loopEnabled     bool
	loopDurationSec float64

	playing                bool
	startTime              float64
	nextIndex              int
	scheduledInCurrentLoop map[int]struct{}
	currentLoopIteration   int
	playhead               float64

	mutedTracks  map[string]bool
	soloedTracks map[string]bool

	clock   AudioClock
	sink    NoteSink
	backend AudioBackend
	cancel  context.CancelFunc

	stateListener    func(TransportState)
	playheadListener func(float64)
}

// New builds a Transport from cfg. An invalid loop configuration
// (loopBars <= 0 or bpm <= 0) collapses loopDurationSec to 0, per spec §4.5
// "Failure modes" — the transport then runs non-looping regardless of
// LoopEnabled, and never raises.
func New(cfg Config) *Transport {
	loopDur := 0.0
	if cfg.LoopBars > 0 && cfg.BPM > 0 {
		loopDur = float64(cfg.LoopBars) * 4 * 60 / cfg.BPM
	}
	return &Transport{
		events:          cfg.Events,
		bpm:             cfg.BPM,
		loopBars:        cfg.LoopBars,
		loopEnabled:     cfg.LoopEnabled,
		loopDurationSec: loopDur,
		clock:           cfg.Clock,
		sink:            cfg.Sink,
		backend:         cfg.Backend,
		mutedTracks:     make(map[string]bool),
		soloedTracks:    make(map[string]bool),
	}
}

// OnStateChange registers the listener notified on Play/Stop/SetLoopEnabled.
func (t *Transport) OnStateChange(fn func(TransportState)) {
	t.mu.Lock()
	t.stateListener = fn
	t.mu.Unlock()
}

// OnPlayhead registers the listener notified once per tick with the
// current playhead position.
func (t *Transport) OnPlayhead(fn func(float64)) {
	t.mu.Lock()
	t.playheadListener = fn
	t.mu.Unlock()
}

// Play starts playback from t=0, resuming the audio backend first. A call
// while already playing is a no-op.
func (t *Transport) Play(ctx context.Context) error {
	t.mu.Lock()
	if t.playing {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if t.backend != nil {
		if err := t.backend.Resume(ctx); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.startTime = t.clock.Now()
	t.playing = true
	t.nextIndex = 0
	t.currentLoopIteration = 0
	t.scheduledInCurrentLoop = make(map[int]struct{})
	t.playhead = 0

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.runTicker(runCtx)

	t.notifyStateLocked()
	return nil
}

// Stop halts the tick, silences the backend, and resets the walk cursor.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Transport) stopLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.backend != nil {
		t.backend.CancelAll()
	}
	t.nextIndex = 0
	t.currentLoopIteration = 0
	t.scheduledInCurrentLoop = make(map[int]struct{})
	t.playing = false
	t.notifyStateLocked()
}

// Restart stops then plays, replaying from the beginning.
func (t *Transport) Restart(ctx context.Context) error {
	t.Stop()
	return t.Play(ctx)
}

// SetLoopEnabled takes effect on the next tick.
func (t *Transport) SetLoopEnabled(enabled bool) {
	t.mu.Lock()
	t.loopEnabled = enabled
	t.notifyStateLocked()
	t.mu.Unlock()
}

// SetTrackMuted takes effect on the next tick.
func (t *Transport) SetTrackMuted(name string, muted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if muted {
		t.mutedTracks[name] = true
	} else {
		delete(t.mutedTracks, name)
	}
}

// SetTrackSoloed takes effect on the next tick. Solo overrides mute per
// spec §4.5 "Track filter".
func (t *Transport) SetTrackSoloed(name string, soloed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if soloed {
		t.soloedTracks[name] = true
	} else {
		delete(t.soloedTracks, name)
	}
}

func (t *Transport) IsTrackMuted(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mutedTracks[name]
}

func (t *Transport) IsTrackSoloed(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.soloedTracks[name]
}

func (t *Transport) GetPlayheadPosition() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playhead
}

func (t *Transport) GetTransportState() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Transport) snapshotLocked() TransportState {
	muted := make([]string, 0, len(t.mutedTracks))
	for name := range t.mutedTracks {
		muted = append(muted, name)
	}
	sort.Strings(muted)
	soloed := make([]string, 0, len(t.soloedTracks))
	for name := range t.soloedTracks {
		soloed = append(soloed, name)
	}
	sort.Strings(soloed)
	return TransportState{
		Playing:              t.playing,
		StartTime:            t.startTime,
		NextIndex:            t.nextIndex,
		CurrentLoopIteration: t.currentLoopIteration,
		LoopEnabled:          t.loopEnabled,
		LoopDurationSec:      t.loopDurationSec,
		BPM:                  t.bpm,
		MutedTracks:          muted,
		SoloedTracks:         soloed,
	}
}

func (t *Transport) notifyStateLocked() {
	if t.stateListener != nil {
		t.stateListener(t.snapshotLocked())
	}
}

func (t *Transport) runTicker(ctx context.Context) {
	ticker := time.NewTicker(LookaheadMS * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Tick is the contract of spec §4.5's "tick", exported so a host can drive
// it directly (e.g. from an offline test or a custom driver loop) instead
// of relying on the internal time.Ticker.
func (t *Transport) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return
	}
	now := t.clock.Now()
	elapsed := now - t.startTime
	looping := t.loopEnabled && t.loopDurationSec > 0

	if looping {
		t.playhead = math.Mod(elapsed, t.loopDurationSec)
	} else {
		t.playhead = elapsed
	}
	if t.playheadListener != nil {
		t.playheadListener(t.playhead)
	}

	if looping {
		t.tickLooping(now, elapsed)
	} else {
		t.tickNonLooping(now)
	}
}

func (t *Transport) tickNonLooping(now float64) {
	for t.nextIndex < len(t.events) {
		ev := t.events[t.nextIndex]
		when := t.startTime + ev.T
		if when >= now+ScheduleAheadSec {
			break
		}
		if when >= now && ev.Kind != compiler.EventRest && t.trackAccepted(ev) {
			t.dispatch(ev, when)
		}
		t.nextIndex++
	}
	if len(t.events) == 0 {
		t.stopLocked()
		return
	}
	if t.nextIndex >= len(t.events) {
		last := t.events[len(t.events)-1]
		if now > t.startTime+last.T+last.Dur {
			t.stopLocked()
		}
	}
}

func (t *Transport) tickLooping(now, elapsed float64) {
	newIteration := int(math.Floor(elapsed / t.loopDurationSec))
	if newIteration > t.currentLoopIteration {
		t.currentLoopIteration = newIteration
		t.nextIndex = 0
		t.scheduledInCurrentLoop = make(map[int]struct{})
	}
	loopOrigin := t.startTime + float64(t.currentLoopIteration)*t.loopDurationSec

	for t.nextIndex < len(t.events) {
		ev := t.events[t.nextIndex]
		if ev.T >= t.loopDurationSec {
			t.nextIndex++
			continue
		}
		when := loopOrigin + ev.T
		if when >= now+ScheduleAheadSec {
			break
		}
		if when >= now {
			if _, seen := t.scheduledInCurrentLoop[t.nextIndex]; !seen {
				if ev.Kind != compiler.EventRest && t.trackAccepted(ev) {
					t.dispatch(ev, when)
				}
				t.scheduledInCurrentLoop[t.nextIndex] = struct{}{}
			}
		}
		t.nextIndex++
	}

	phase := math.Mod(elapsed, t.loopDurationSec)
	if phase+ScheduleAheadSec < t.loopDurationSec {
		return
	}
	nextLoopOrigin := loopOrigin + t.loopDurationSec
	for _, ev := range t.events {
		if ev.T >= t.loopDurationSec {
			continue
		}
		when := nextLoopOrigin + ev.T
		if when >= now && when < now+ScheduleAheadSec {
			if ev.Kind != compiler.EventRest && t.trackAccepted(ev) {
				t.dispatch(ev, when)
			}
		}
	}
}

func (t *Transport) trackAccepted(ev compiler.Event) bool {
	name := ev.Track
	if name == "" {
		name = "default"
	}
	if len(t.soloedTracks) > 0 {
		return t.soloedTracks[name]
	}
	return !t.mutedTracks[name]
}

func (t *Transport) dispatch(ev compiler.Event, when float64) {
	if t.sink != nil {
		t.sink.Dispatch(ev, when)
	}
}
