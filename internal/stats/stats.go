// Package stats aggregates pipeline counters behind a consistent snapshot.
package stats

import (
	"sync"
	"time"

	"github.com/vigia-labs/plategate/internal/timeutil"
)

// Snapshot is a self-consistent copy of the aggregator's state with rates
// derived at read time.
type Snapshot struct {
	FramesIngested     uint64    `json:"frames_ingested"`
	FramesInferred     uint64    `json:"frames_inferred"`
	DetectionsAccepted uint64    `json:"detections_accepted"`
	StartedAt          time.Time `json:"started_at"`
	Elapsed            float64   `json:"elapsed_seconds"`
	IngestRate         float64   `json:"ingest_fps"`
	InferRate          float64   `json:"infer_fps"`
}

// Aggregator counts pipeline events. Safe for concurrent use; all fields
// are read together under one lock so a Snapshot is never torn.
type Aggregator struct {
	clock timeutil.Clock

	mu        sync.Mutex
	ingested  uint64
	inferred  uint64
	accepted  uint64
	startedAt time.Time
}

// New creates an Aggregator whose start time is the clock's current time.
func New(clock timeutil.Clock) *Aggregator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Aggregator{clock: clock, startedAt: clock.Now()}
}

// FrameIngested records one frame pulled from the source.
func (a *Aggregator) FrameIngested() {
	a.mu.Lock()
	a.ingested++
	a.mu.Unlock()
}

// FrameInferred records one frame forwarded to inference.
func (a *Aggregator) FrameInferred() {
	a.mu.Lock()
	a.inferred++
	a.mu.Unlock()
}

// DetectionAccepted records one detection that survived the cooldown.
func (a *Aggregator) DetectionAccepted() {
	a.mu.Lock()
	a.accepted++
	a.mu.Unlock()
}

// Snapshot returns a consistent copy of the counters with per-second rates
// over the elapsed time since construction.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	s := Snapshot{
		FramesIngested:     a.ingested,
		FramesInferred:     a.inferred,
		DetectionsAccepted: a.accepted,
		StartedAt:          a.startedAt,
	}
	a.mu.Unlock()

	s.Elapsed = a.clock.Since(s.StartedAt).Seconds()
	if s.Elapsed > 0 {
		s.IngestRate = float64(s.FramesIngested) / s.Elapsed
		s.InferRate = float64(s.FramesInferred) / s.Elapsed
	}
	return s
}
