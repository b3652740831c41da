package pipeline

import (
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/vigia-labs/plategate/internal/frame"
)

// Candidate is one plate region proposed by the detector.
type Candidate struct {
	Box        image.Rectangle
	Confidence float64
}

// Text is the recognizer's output for one plate region.
type Text struct {
	Text       string
	Confidence float64
}

// Result is an accepted detection, immutable once assembled.
type Result struct {
	ID                 string
	Plate              string
	Kind               string
	Valid              bool
	Authorized         bool
	DetectorConfidence float64
	OCRConfidence      float64
	FormatScore        float64
	PlateBox           image.Rectangle
	VehicleBox         image.Rectangle
	Location           string
	Timestamp          time.Time
}

// FrameSource supplies frames to the ingestion loop.
type FrameSource interface {
	GetFrame() (frame.Frame, error)
	Rate() float64
}

// Detector proposes plate regions in a frame. Optional capability:
// when absent, frames yield zero candidates.
type Detector interface {
	Detect(img gocv.Mat) ([]Candidate, error)
}

// Recognizer reads text out of a plate region. Optional capability.
type Recognizer interface {
	Recognize(region gocv.Mat) (Text, error)
}

// Authorizer decides whether a plate may enter. Optional capability:
// when absent, every result carries Authorized=false.
type Authorizer interface {
	IsAuthorized(plate string) (bool, error)
}

// Store persists accepted results. Optional capability; failures are
// reported but never fatal.
type Store interface {
	InsertDetection(r Result) error
}

// Notifier publishes accepted results to external consumers. Optional
// capability; failures are reported but never fatal.
type Notifier interface {
	PublishDetection(r Result) error
}

// Capabilities bundles the optional externals the pipeline drives. Any
// nil field degrades its stage gracefully.
type Capabilities struct {
	Detector   Detector
	Recognizer Recognizer
	Authorizer Authorizer
	Store      Store
	Notifier   Notifier
}
