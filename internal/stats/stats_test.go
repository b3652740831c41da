package stats

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/vigia-labs/plategate/internal/timeutil"
)

func TestSnapshotRates(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	a := New(clock)

	for i := 0; i < 40; i++ {
		a.FrameIngested()
	}
	for i := 0; i < 20; i++ {
		a.FrameInferred()
	}
	a.DetectionAccepted()

	clock.Advance(4 * time.Second)
	s := a.Snapshot()

	if s.FramesIngested != 40 || s.FramesInferred != 20 || s.DetectionsAccepted != 1 {
		t.Fatalf("counters = %d/%d/%d", s.FramesIngested, s.FramesInferred, s.DetectionsAccepted)
	}
	if math.Abs(s.IngestRate-10) > 1e-9 {
		t.Errorf("IngestRate = %v, want 10", s.IngestRate)
	}
	if math.Abs(s.InferRate-5) > 1e-9 {
		t.Errorf("InferRate = %v, want 5", s.InferRate)
	}
	if math.Abs(s.Elapsed-4) > 1e-9 {
		t.Errorf("Elapsed = %v, want 4", s.Elapsed)
	}
}

func TestSnapshotZeroElapsed(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	a := New(clock)
	a.FrameIngested()

	s := a.Snapshot()
	if s.IngestRate != 0 || s.InferRate != 0 {
		t.Errorf("rates with zero elapsed = %v/%v, want 0/0", s.IngestRate, s.InferRate)
	}
}

func TestConcurrentCounting(t *testing.T) {
	a := New(timeutil.RealClock{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				a.FrameIngested()
				if j%2 == 0 {
					a.FrameInferred()
				}
			}
		}()
	}
	wg.Wait()

	s := a.Snapshot()
	if s.FramesIngested != 8000 {
		t.Errorf("FramesIngested = %d, want 8000", s.FramesIngested)
	}
	if s.FramesInferred != 4000 {
		t.Errorf("FramesInferred = %d, want 4000", s.FramesInferred)
	}
}
