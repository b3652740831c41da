package ocr

import (
	"fmt"
	"testing"

	"gocv.io/x/gocv"

	"github.com/vigia-labs/plategate/internal/pipeline"
)

func TestImageKeyStableAndSizeSensitive(t *testing.T) {
	a := gocv.NewMatWithSize(40, 100, gocv.MatTypeCV8UC1)
	defer a.Close()
	b := gocv.NewMatWithSize(40, 100, gocv.MatTypeCV8UC1)
	defer b.Close()
	c := gocv.NewMatWithSize(20, 100, gocv.MatTypeCV8UC1)
	defer c.Close()

	if imageKey(a) != imageKey(b) {
		t.Error("identical mats produced different keys")
	}
	if imageKey(a) == imageKey(c) {
		t.Error("different dimensions produced the same key")
	}

	// A changed sampled pixel changes the key.
	b.SetUCharAt(0, 0, 200)
	if imageKey(a) == imageKey(b) {
		t.Error("changed pixel did not change the key")
	}
}

func TestImageKeyTinyMat(t *testing.T) {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV8UC1)
	defer m.Close()
	// 9 pixels rounds to zero samples; key is dimensions only.
	if got, want := imageKey(m), "3x3_"; got != want {
		t.Errorf("imageKey = %q, want %q", got, want)
	}
}

func TestCacheEvictsOldestFifth(t *testing.T) {
	p := &Processor{
		cache:     map[string]pipeline.Text{},
		cacheSize: 10,
	}
	for i := 0; i < 10; i++ {
		p.cachePut(fmt.Sprintf("k%d", i), pipeline.Text{Text: "ABC123"})
	}
	if len(p.cache) != 10 {
		t.Fatalf("cache len = %d, want 10", len(p.cache))
	}

	// The 11th insert evicts the oldest 20% (k0, k1).
	p.cachePut("k10", pipeline.Text{Text: "XYZ789"})
	if len(p.cache) != 9 {
		t.Errorf("cache len after eviction = %d, want 9", len(p.cache))
	}
	for _, gone := range []string{"k0", "k1"} {
		if _, ok := p.cacheGet(gone); ok {
			t.Errorf("%s survived eviction", gone)
		}
	}
	if _, ok := p.cacheGet("k10"); !ok {
		t.Error("new entry missing after eviction")
	}
}

func TestCachePutUpdatesInPlace(t *testing.T) {
	p := &Processor{
		cache:     map[string]pipeline.Text{},
		cacheSize: 2,
	}
	p.cachePut("k", pipeline.Text{Text: "ABC123", Confidence: 0.5})
	p.cachePut("k", pipeline.Text{Text: "ABC123", Confidence: 0.8})

	got, ok := p.cacheGet("k")
	if !ok || got.Confidence != 0.8 {
		t.Errorf("cacheGet = (%v, %v)", got, ok)
	}
	if len(p.order) != 1 {
		t.Errorf("order has %d entries, want 1", len(p.order))
	}
}

func TestBinarizationCount(t *testing.T) {
	gray := gocv.NewMatWithSize(30, 80, gocv.MatTypeCV8UC1)
	defer gray.Close()

	bins := binarizations(gray)
	for _, b := range bins {
		b.Close()
	}
	// Otsu x2, adaptive x2, four fixed levels x2 polarities.
	if len(bins) != 12 {
		t.Errorf("binarizations returned %d mats, want 12", len(bins))
	}
}
