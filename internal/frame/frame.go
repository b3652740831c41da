// Package frame defines the video frame unit passed between the capture
// and processing stages, and the bounded drop-oldest queue that carries it.
package frame

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is one captured video frame. The Mat is owned by whoever holds
// the Frame; Close must be called exactly once when it leaves the
// pipeline.
type Frame struct {
	Mat       gocv.Mat
	Seq       uint64
	Timestamp time.Time
}

// Close releases the underlying Mat.
func (f *Frame) Close() {
	f.Mat.Close()
}
