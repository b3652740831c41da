// Package detect wraps an ONNX YOLO plate-detection model behind the
// pipeline's Detector capability using OpenCV's DNN module.
package detect

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/vigia-labs/plategate/internal/pipeline"
)

const (
	// inputSize is the YOLO network input resolution.
	inputSize = 640
	// scaleFactor normalizes 8-bit pixels into [0,1].
	scaleFactor = 1.0 / 255.0

	// DefaultConfidence filters weak boxes before NMS.
	DefaultConfidence = 0.30
	// DefaultNMSThreshold is the IoU overlap above which boxes merge.
	DefaultNMSThreshold = 0.40
)

// Config tunes the detector.
type Config struct {
	ModelPath           string
	ConfidenceThreshold float64
	NMSThreshold        float64
}

// YOLO runs a single-class YOLO v5/v8 plate model. Not safe for
// concurrent Detect calls; the pipeline's single processing loop is the
// only caller.
type YOLO struct {
	net     gocv.Net
	confThr float32
	nmsThr  float32
}

// NewYOLO loads the ONNX model at cfg.ModelPath.
func NewYOLO(cfg Config) (*YOLO, error) {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidence
	}
	if cfg.NMSThreshold <= 0 {
		cfg.NMSThreshold = DefaultNMSThreshold
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("detect: cannot load model %q", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLO{
		net:     net,
		confThr: float32(cfg.ConfidenceThreshold),
		nmsThr:  float32(cfg.NMSThreshold),
	}, nil
}

// Close releases the network.
func (y *YOLO) Close() error {
	return y.net.Close()
}

// Detect runs the model over img and returns plate candidates with boxes
// in img coordinates, filtered by confidence and non-maximum suppression.
func (y *YOLO) Detect(img gocv.Mat) ([]pipeline.Candidate, error) {
	if img.Empty() {
		return nil, nil
	}

	blob := gocv.BlobFromImage(img, scaleFactor, image.Pt(inputSize, inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	y.net.SetInput(blob, "")
	output := y.net.Forward("")
	defer output.Close()

	boxes, scores := y.decode(output, img.Cols(), img.Rows())
	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, y.confThr, y.nmsThr)
	cands := make([]pipeline.Candidate, 0, len(indices))
	for _, idx := range indices {
		cands = append(cands, pipeline.Candidate{
			Box:        boxes[idx],
			Confidence: float64(scores[idx]),
		})
	}
	return cands, nil
}

// decode walks a [1, boxes, 4+classes] YOLO output, converting each
// center-size row above the confidence threshold into an image-space
// rectangle.
func (y *YOLO) decode(output gocv.Mat, imgW, imgH int) ([]image.Rectangle, []float32) {
	dims := output.Size()
	if len(dims) != 3 || dims[2] < 4 {
		return nil, nil
	}
	numBoxes, features := dims[1], dims[2]

	xScale := float32(imgW) / float32(inputSize)
	yScale := float32(imgH) / float32(inputSize)

	var boxes []image.Rectangle
	var scores []float32
	for i := 0; i < numBoxes; i++ {
		// Best class score; a 4-feature row carries no class scores and
		// gets a neutral confidence.
		conf := float32(0.5)
		if features > 4 {
			conf = 0
			for j := 4; j < features; j++ {
				if s := output.GetFloatAt3(0, i, j); s > conf {
					conf = s
				}
			}
		}
		if conf < y.confThr {
			continue
		}

		cx := output.GetFloatAt3(0, i, 0)
		cy := output.GetFloatAt3(0, i, 1)
		w := output.GetFloatAt3(0, i, 2)
		h := output.GetFloatAt3(0, i, 3)

		x := (cx - w/2) * xScale
		yy := (cy - h/2) * yScale
		box := image.Rect(int(x), int(yy), int(x+w*xScale), int(yy+h*yScale))

		boxes = append(boxes, box)
		scores = append(scores, conf)
	}
	return boxes, scores
}
