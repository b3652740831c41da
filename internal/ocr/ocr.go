// Package ocr reads plate text out of cropped regions with Tesseract,
// trying several binarizations per region and caching results by image
// content.
package ocr

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	"github.com/vigia-labs/plategate/internal/pipeline"
	"github.com/vigia-labs/plategate/internal/plate"
)

const (
	// DefaultConfidenceThreshold rejects reads whose mean word
	// confidence falls below it.
	DefaultConfidenceThreshold = 0.2
	// DefaultCacheSize bounds the per-image result cache.
	DefaultCacheSize = 100

	whitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// goodEnough stops the multi-attempt loop early; weakFloor triggers
	// the bilateral+adaptive fallback pass.
	goodEnough = 0.9
	weakFloor  = 0.5

	minWidth  = 60
	minHeight = 20
	maxScale  = 4.0
)

// Config tunes the processor.
type Config struct {
	Language            string
	ConfidenceThreshold float64
	CacheSize           int
}

// Processor implements the pipeline's Recognizer capability. Recognize
// is not reentrant (one Tesseract client); the cache is still guarded
// for concurrent readers.
type Processor struct {
	client *gosseract.Client
	thr    float64

	mu        sync.Mutex
	cache     map[string]pipeline.Text
	order     []string
	cacheSize int
}

// New initializes a Tesseract client restricted to a single line of
// uppercase alphanumerics.
func New(cfg Config) (*Processor, error) {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(cfg.Language); err != nil {
		client.Close()
		return nil, fmt.Errorf("ocr: language %q: %w", cfg.Language, err)
	}
	if err := client.SetWhitelist(whitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("ocr: whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("ocr: page seg mode: %w", err)
	}

	return &Processor{
		client:    client,
		thr:       cfg.ConfidenceThreshold,
		cache:     map[string]pipeline.Text{},
		cacheSize: cfg.CacheSize,
	}, nil
}

// Close releases the Tesseract client.
func (p *Processor) Close() error {
	return p.client.Close()
}

// Recognize reads text from region, trying multiple binarizations and
// keeping the highest-confidence result. Results are cached by a sampled
// content hash of the input region.
func (p *Processor) Recognize(region gocv.Mat) (pipeline.Text, error) {
	if region.Empty() {
		return pipeline.Text{}, nil
	}

	key := imageKey(region)
	if t, ok := p.cacheGet(key); ok {
		return t, nil
	}

	gray := toGray(region)
	defer gray.Close()
	upscaleSmall(&gray)

	var best pipeline.Text
	for _, bin := range binarizations(gray) {
		t, err := p.recognizeMat(bin)
		bin.Close()
		if err != nil {
			return pipeline.Text{}, err
		}
		if t.Confidence > best.Confidence {
			best = t
		}
		if best.Confidence > goodEnough {
			break
		}
	}

	if best.Confidence < weakFloor {
		processed := preprocess(gray)
		t, err := p.recognizeMat(processed)
		processed.Close()
		if err != nil {
			return pipeline.Text{}, err
		}
		if t.Confidence > best.Confidence {
			best = t
		}
	}

	if best.Text != "" {
		p.cachePut(key, best)
	}
	return best, nil
}

func (p *Processor) recognizeMat(m gocv.Mat) (pipeline.Text, error) {
	buf, err := gocv.IMEncode(".png", m)
	if err != nil {
		return pipeline.Text{}, fmt.Errorf("ocr: encode: %w", err)
	}
	defer buf.Close()

	if err := p.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return pipeline.Text{}, fmt.Errorf("ocr: set image: %w", err)
	}
	raw, err := p.client.Text()
	if err != nil {
		return pipeline.Text{}, fmt.Errorf("ocr: text: %w", err)
	}

	conf := 0.0
	if boxes, err := p.client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil {
		total, n := 0.0, 0
		for _, b := range boxes {
			if b.Confidence > 0 {
				total += b.Confidence
				n++
			}
		}
		if n > 0 {
			conf = total / float64(n) / 100.0
		}
	}
	if conf < p.thr {
		return pipeline.Text{}, nil
	}

	return pipeline.Text{
		Text:       plate.CleanText(strings.TrimSpace(raw)),
		Confidence: conf,
	}, nil
}

func (p *Processor) cacheGet(key string) (pipeline.Text, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.cache[key]
	return t, ok
}

// cachePut inserts a result, evicting the oldest 20% of entries once the
// cache is full.
func (p *Processor) cachePut(key string, t pipeline.Text) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.cache[key]; exists {
		p.cache[key] = t
		return
	}
	if len(p.cache) >= p.cacheSize {
		drop := p.cacheSize / 5
		if drop < 1 {
			drop = 1
		}
		for _, old := range p.order[:drop] {
			delete(p.cache, old)
		}
		p.order = p.order[drop:]
	}
	p.cache[key] = t
	p.order = append(p.order, key)
}

// imageKey hashes the region by its dimensions plus a sparse sample of
// pixels, cheap enough to run per frame.
func imageKey(m gocv.Mat) string {
	var sb strings.Builder
	rows, cols := m.Rows(), m.Cols()
	fmt.Fprintf(&sb, "%dx%d_", rows, cols)

	samples := rows * cols / 100
	if samples > 20 {
		samples = 20
	}
	for i := 0; i < samples; i++ {
		x := (i * 17) % cols
		y := (i * 23) % rows
		fmt.Fprintf(&sb, "%x_", m.GetUCharAt(y, x))
	}
	return sb.String()
}

func toGray(m gocv.Mat) gocv.Mat {
	if m.Channels() == 3 {
		gray := gocv.NewMat()
		gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
		return gray
	}
	return m.Clone()
}

// upscaleSmall enlarges regions below the size Tesseract reads reliably,
// capped at 4x.
func upscaleSmall(gray *gocv.Mat) {
	cols, rows := gray.Cols(), gray.Rows()
	if cols >= minWidth && rows >= minHeight {
		return
	}
	scale := float64(minWidth) / float64(cols)
	if s := float64(minHeight) / float64(rows); s > scale {
		scale = s
	}
	if scale > maxScale {
		scale = maxScale
	}
	gocv.Resize(*gray, gray,
		image.Pt(int(float64(cols)*scale), int(float64(rows)*scale)),
		0, 0, gocv.InterpolationCubic)
}

// binarizations produces the candidate thresholdings tried per region:
// Otsu both polarities, adaptive mean and Gaussian, then fixed levels in
// both polarities. Caller closes each Mat.
func binarizations(gray gocv.Mat) []gocv.Mat {
	var out []gocv.Mat

	otsu := gocv.NewMat()
	gocv.Threshold(gray, &otsu, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	out = append(out, otsu)

	otsuInv := gocv.NewMat()
	gocv.Threshold(gray, &otsuInv, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)
	out = append(out, otsuInv)

	mean := gocv.NewMat()
	gocv.AdaptiveThreshold(gray, &mean, 255, gocv.AdaptiveThresholdMean, gocv.ThresholdBinary, 11, 2)
	out = append(out, mean)

	gauss := gocv.NewMat()
	gocv.AdaptiveThreshold(gray, &gauss, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, 11, 2)
	out = append(out, gauss)

	for _, level := range []float32{80, 100, 120, 140} {
		fixed := gocv.NewMat()
		gocv.Threshold(gray, &fixed, level, 255, gocv.ThresholdBinary)
		out = append(out, fixed)

		fixedInv := gocv.NewMat()
		gocv.Threshold(gray, &fixedInv, level, 255, gocv.ThresholdBinaryInv)
		out = append(out, fixedInv)
	}
	return out
}

// preprocess is the fallback path: bilateral denoise then Gaussian
// adaptive threshold.
func preprocess(gray gocv.Mat) gocv.Mat {
	smoothed := gocv.NewMat()
	gocv.BilateralFilter(gray, &smoothed, 5, 30, 30)

	binary := gocv.NewMat()
	gocv.AdaptiveThreshold(smoothed, &binary, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, 11, 2)
	smoothed.Close()
	return binary
}
