// Package pipeline orchestrates frame ingestion and plate recognition as
// two long-lived goroutines joined by a bounded drop-oldest queue.
package pipeline

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vigia-labs/plategate/internal/cooldown"
	"github.com/vigia-labs/plategate/internal/frame"
	"github.com/vigia-labs/plategate/internal/monitoring"
	"github.com/vigia-labs/plategate/internal/plate"
	"github.com/vigia-labs/plategate/internal/stats"
	"github.com/vigia-labs/plategate/internal/timeutil"
)

// State is the pipeline lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// DefaultAIEvery forwards every 2nd ingested frame to inference.
	DefaultAIEvery = 2
	// DefaultQueueSize bounds the inter-stage frame queue.
	DefaultQueueSize = 3
	// DefaultCooldownWindow debounces repeat sightings of one plate.
	DefaultCooldownWindow = 500 * time.Millisecond

	// idleDelay paces the ingestion loop when the source has no frame;
	// pollDelay paces the processing loop when the queue is empty. Both
	// short so Stop is observed promptly.
	idleDelay = 1 * time.Millisecond
	pollDelay = 10 * time.Millisecond
)

// Config fixes the pipeline's tunables at construction.
type Config struct {
	// AIEvery forwards every Nth ingested frame to inference. Minimum 1.
	AIEvery int
	// CooldownWindow is the debounce window per plate.
	CooldownWindow time.Duration
	// QueueSize is the inter-stage queue capacity.
	QueueSize int
	// Location tags every result with where the camera is mounted.
	Location string
}

func (c Config) withDefaults() Config {
	if c.AIEvery < 1 {
		c.AIEvery = DefaultAIEvery
	}
	if c.CooldownWindow <= 0 {
		c.CooldownWindow = DefaultCooldownWindow
	}
	if c.QueueSize < 1 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Pipeline pulls frames from a source, throttles them into inference and
// turns recognized plates into Results.
type Pipeline struct {
	src   FrameSource
	caps  Capabilities
	cfg   Config
	clock timeutil.Clock

	queue *frame.Queue
	cool  *cooldown.Table
	stats *stats.Aggregator

	state atomic.Int32
	wg    sync.WaitGroup
}

// New assembles a pipeline. src must be non-nil; every capability is
// optional. A nil clock or aggregator gets a real one.
func New(src FrameSource, caps Capabilities, cfg Config, clock timeutil.Clock, agg *stats.Aggregator) *Pipeline {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if agg == nil {
		agg = stats.New(clock)
	}
	return &Pipeline{
		src:   src,
		caps:  caps,
		cfg:   cfg,
		clock: clock,
		queue: frame.NewQueue(cfg.QueueSize),
		cool:  cooldown.New(cfg.CooldownWindow),
		stats: agg,
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Stats returns the aggregator shared with the pipeline's loops.
func (p *Pipeline) Stats() *stats.Aggregator { return p.stats }

// Start spawns the ingestion and processing loops. It fails unless the
// pipeline is Idle.
func (p *Pipeline) Start() error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return errors.New("pipeline: not idle")
	}
	p.wg.Add(2)
	go p.ingestLoop()
	go p.processLoop()
	monitoring.Logf("pipeline: started (ai_every=%d cooldown=%s queue=%d)",
		p.cfg.AIEvery, p.cfg.CooldownWindow, p.cfg.QueueSize)
	return nil
}

// Stop signals both loops and blocks until they exit, then drains the
// queue. Detector and recognizer calls are synchronous and not
// cancellable, so Stop may wait up to one inference call's latency.
func (p *Pipeline) Stop() {
	if !p.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return
	}
	p.wg.Wait()
	p.queue.Drain()
	p.state.Store(int32(StateStopped))
	monitoring.Logf("pipeline: stopped")
}

func (p *Pipeline) running() bool {
	return p.State() == StateRunning
}

func (p *Pipeline) ingestLoop() {
	defer p.wg.Done()
	for p.running() {
		f, err := p.src.GetFrame()
		if err != nil {
			p.clock.Sleep(idleDelay)
			continue
		}
		p.stats.FrameIngested()
		if evicted, dropped := p.queue.Push(f); dropped {
			evicted.Close()
		}
	}
}

func (p *Pipeline) processLoop() {
	defer p.wg.Done()
	counter := 0
	for p.running() {
		f, ok := p.queue.Pop()
		if !ok {
			p.clock.Sleep(pollDelay)
			continue
		}
		counter++
		if counter%p.cfg.AIEvery == 0 {
			p.stats.FrameInferred()
			p.processFrame(&f)
		}
		f.Close()
	}
}

func (p *Pipeline) processFrame(f *frame.Frame) {
	if p.caps.Detector == nil {
		return
	}
	cands, err := p.caps.Detector.Detect(f.Mat)
	if err != nil {
		monitoring.Logf("pipeline: detect frame %d: %v", f.Seq, err)
		return
	}
	for _, cand := range cands {
		p.processCandidate(f, cand)
	}
}

func (p *Pipeline) processCandidate(f *frame.Frame, cand Candidate) {
	if p.caps.Recognizer == nil {
		return
	}

	bounds := image.Rect(0, 0, f.Mat.Cols(), f.Mat.Rows())
	box := cand.Box.Intersect(bounds)
	if box.Empty() {
		return
	}

	roi := f.Mat.Region(box)
	text, err := p.caps.Recognizer.Recognize(roi)
	roi.Close()
	if err != nil {
		monitoring.Logf("pipeline: recognize frame %d: %v", f.Seq, err)
		return
	}
	if text.Text == "" {
		return
	}

	normalized, ok := plate.Normalize(text.Text)
	if !ok {
		return
	}

	now := p.clock.Now()
	if p.cool.Check(normalized, now) {
		return
	}

	authorized := false
	if p.caps.Authorizer != nil {
		authorized, err = p.caps.Authorizer.IsAuthorized(normalized)
		if err != nil {
			monitoring.Logf("pipeline: authorize %s: %v", normalized, err)
			authorized = false
		}
	}

	res := Result{
		ID:                 uuid.NewString(),
		Plate:              normalized,
		Kind:               plate.KindOf(normalized).String(),
		Valid:              plate.IsValid(normalized),
		Authorized:         authorized,
		DetectorConfidence: cand.Confidence,
		OCRConfidence:      text.Confidence,
		FormatScore:        plate.FormatScore(normalized),
		PlateBox:           box,
		VehicleBox:         box,
		Location:           p.cfg.Location,
		Timestamp:          now,
	}
	p.stats.DetectionAccepted()
	monitoring.Logf("pipeline: plate %s (valid=%t authorized=%t det=%.2f ocr=%.2f)",
		res.Plate, res.Valid, res.Authorized, res.DetectorConfidence, res.OCRConfidence)

	if p.caps.Store != nil {
		if err := p.caps.Store.InsertDetection(res); err != nil {
			monitoring.Logf("pipeline: store %s: %v", res.Plate, err)
		}
	}
	if p.caps.Notifier != nil {
		if err := p.caps.Notifier.PublishDetection(res); err != nil {
			monitoring.Logf("pipeline: notify %s: %v", res.Plate, err)
		}
	}
}
