// Package capture acquires live video frames from a camera or stream and
// buffers them for the pipeline with drop-oldest overflow.
package capture

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/vigia-labs/plategate/internal/frame"
	"github.com/vigia-labs/plategate/internal/monitoring"
	"github.com/vigia-labs/plategate/internal/timeutil"
)

const (
	// DefaultBufferSize keeps only the freshest couple of frames; stale
	// video is worthless for live recognition.
	DefaultBufferSize = 2

	// startReadAttempts bounds how long Start waits for the first frame
	// before declaring the device unusable.
	startReadAttempts = 25
	startReadDelay    = 100 * time.Millisecond

	// readRetryDelay paces retries after a transient mid-run read failure.
	readRetryDelay = 10 * time.Millisecond
)

// ErrNoFrame is returned by GetFrame when the buffer is empty.
var ErrNoFrame = errors.New("capture: no frame available")

// Device is the camera abstraction the source reads from. gocv's
// VideoCapture satisfies it via the gocv adapter below; tests substitute
// a synthetic device.
type Device interface {
	// Read fills m with the next frame, reporting whether one was read.
	Read(m *gocv.Mat) bool
	// Close releases the device.
	Close() error
}

// OpenDevice opens src with gocv. src may be a device index ("0"), a
// file path, or a stream URL.
func OpenDevice(src string) (Device, error) {
	vc, err := gocv.OpenVideoCapture(src)
	if err != nil {
		return nil, fmt.Errorf("capture: open %q: %w", src, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture: device %q did not open", src)
	}
	return vc, nil
}

// Source reads frames from a Device on a background loop into a bounded
// drop-oldest buffer.
type Source struct {
	dev   Device
	buf   *frame.Queue
	clock timeutil.Clock

	running atomic.Bool
	fps     atomic.Uint64 // math.Float64bits
	seq     atomic.Uint64

	wg sync.WaitGroup
}

// New creates a Source over dev with the given buffer capacity.
func New(dev Device, bufferSize int, clock timeutil.Clock) *Source {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Source{
		dev:   dev,
		buf:   frame.NewQueue(bufferSize),
		clock: clock,
	}
}

// Start verifies the device produces frames, then spawns the acquisition
// loop. On failure no background loop is left running.
func (s *Source) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("capture: already running")
	}

	first := gocv.NewMat()
	ok := false
	for i := 0; i < startReadAttempts; i++ {
		if s.dev.Read(&first) && !first.Empty() {
			ok = true
			break
		}
		s.clock.Sleep(startReadDelay)
	}
	if !ok {
		first.Close()
		s.running.Store(false)
		return errors.New("capture: no frame obtainable from device")
	}
	s.push(first)

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop terminates the acquisition loop, waits for it, releases the device
// and drains the buffer.
func (s *Source) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.wg.Wait()
	if err := s.dev.Close(); err != nil {
		monitoring.Logf("capture: closing device: %v", err)
	}
	s.buf.Drain()
}

// GetFrame returns the oldest buffered frame. The caller owns the frame's
// Mat. Returns ErrNoFrame when the buffer is empty.
func (s *Source) GetFrame() (frame.Frame, error) {
	f, ok := s.buf.Pop()
	if !ok {
		return frame.Frame{}, ErrNoFrame
	}
	return f, nil
}

// Rate returns the acquisition rate in frames per second, measured over
// rolling 1-second windows. Updated at most once per second.
func (s *Source) Rate() float64 {
	return math.Float64frombits(s.fps.Load())
}

func (s *Source) push(m gocv.Mat) {
	f := frame.Frame{
		Mat:       m,
		Seq:       s.seq.Add(1),
		Timestamp: s.clock.Now(),
	}
	if evicted, dropped := s.buf.Push(f); dropped {
		evicted.Close()
	}
}

func (s *Source) loop() {
	defer s.wg.Done()

	windowStart := s.clock.Now()
	windowCount := 0

	for s.running.Load() {
		m := gocv.NewMat()
		if !s.dev.Read(&m) || m.Empty() {
			m.Close()
			s.clock.Sleep(readRetryDelay)
			continue
		}
		s.push(m)

		windowCount++
		if elapsed := s.clock.Since(windowStart); elapsed >= time.Second {
			s.fps.Store(math.Float64bits(float64(windowCount) / elapsed.Seconds()))
			windowStart = s.clock.Now()
			windowCount = 0
		}
	}
}
