package scheduler

import (
	"context"

	"github.com/synthseq/synthseq/internal/compiler"
)

// AudioClock is the host's monotonic clock, read-only and externally owned
// (spec §6, §5 "Shared resources").
type AudioClock interface {
	Now() float64
}

// NoteSink materializes a dispatched note into sound. The scheduler
// guarantees when >= AudioClock.Now() at call time, up to ScheduleAheadSec
// ahead; rest events are never passed here.
type NoteSink interface {
	Dispatch(ev compiler.Event, when float64)
}

// AudioBackend is the tone generator's lifecycle hook, consumed by
// Play/Stop.
type AudioBackend interface {
	Resume(ctx context.Context) error
	CancelAll()
}

// ErrorSink receives one compilation diagnostic per call.
type ErrorSink interface {
	Report(line, column int, message string)
}
