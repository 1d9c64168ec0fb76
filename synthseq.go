// Package synthseq is the host-facing façade over the DSL front-end and
// the real-time scheduler: compile source text to an event list, then
// drive it against a host-provided audio clock, note-sink, and backend.
// The split mirrors player.go's top-level Compile + Player pair, with the
// scheduler itself living in internal/scheduler rather than inline here.
package synthseq

import (
	"github.com/synthseq/synthseq/internal/compiler"
	"github.com/synthseq/synthseq/internal/diag"
	"github.com/synthseq/synthseq/internal/parser"
	"github.com/synthseq/synthseq/internal/scheduler"
)

// Event and CompilationResult are the public names for the compiler's
// output types, re-exported so callers never need to import
// internal/compiler directly.
type Event = compiler.Event
type CompilationResult = compiler.Result

// AudioClock, NoteSink, AudioBackend, and ErrorSink are the external
// collaborators from spec §6, re-exported from internal/scheduler.
type AudioClock = scheduler.AudioClock
type NoteSink = scheduler.NoteSink
type AudioBackend = scheduler.AudioBackend
type ErrorSink = scheduler.ErrorSink

// Transport is the mutable playback handle returned by InitScheduler.
type Transport = scheduler.Transport

// TransportState is the observability snapshot handed to state listeners.
type TransportState = scheduler.TransportState

// CompileSource lexes, parses, and compiles src end to end, per spec §6
// compileSource(text) -> CompilationResult | Error.
func CompileSource(src string) (*CompilationResult, error) {
	prog, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(prog)
}

// CompileAndReport calls CompileSource and forwards any diagnostic to sink,
// matching the host's errorSink contract (spec §6, §7): the compiler
// surfaces the first error and stops, and the host is expected to clear
// any previous error before re-running compilation on edited input.
func CompileAndReport(src string, sink ErrorSink) (*CompilationResult, bool) {
	res, err := CompileSource(src)
	if err != nil {
		if sink != nil {
			if de, ok := err.(*diag.Error); ok {
				sink.Report(de.Line, de.Column, de.Message)
			}
		}
		return nil, false
	}
	return res, true
}

// ApplySwing re-exports the pure swing transform for direct testing, per
// spec §6 applySwing(events, swing, grid, bpm) -> events.
func ApplySwing(events []Event, swing float64, grid int, bpm float64) []Event {
	return compiler.ApplySwing(events, swing, grid, bpm)
}

// SchedulerConfig configures InitScheduler.
type SchedulerConfig struct {
	Clock   AudioClock
	Sink    NoteSink
	Backend AudioBackend
}

// InitScheduler builds a Transport from a compiled result and the host's
// external collaborators, per spec §6 initScheduler(config).
func InitScheduler(result *CompilationResult, cfg SchedulerConfig) *Transport {
	return scheduler.New(scheduler.Config{
		Events:      result.Events,
		BPM:         result.BPM,
		LoopBars:    result.Settings.LoopBars,
		LoopEnabled: false,
		Clock:       cfg.Clock,
		Sink:        cfg.Sink,
		Backend:     cfg.Backend,
	})
}
