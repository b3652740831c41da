package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vigia-labs/plategate/internal/stats"
	"github.com/vigia-labs/plategate/internal/store"
	"github.com/vigia-labs/plategate/internal/timeutil"
)

type fakeReader struct {
	detections []store.Detection
	err        error
	gotHours   int
}

func (f *fakeReader) RecentDetections(hours, limit int) ([]store.Detection, error) {
	f.gotHours = hours
	return f.detections, f.err
}

type fakeRate struct{ fps float64 }

func (f fakeRate) Rate() float64 { return f.fps }

func newTestServer(db DetectionReader) (*Server, *stats.Aggregator) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	agg := stats.New(clock)
	clock.Advance(2 * time.Second)
	return NewServer(agg, db, fakeRate{fps: 14.5}), agg
}

func TestStatsHandler(t *testing.T) {
	srv, agg := newTestServer(nil)
	agg.FrameIngested()
	agg.FrameIngested()
	agg.FrameInferred()

	rr := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var got struct {
		FramesIngested uint64  `json:"frames_ingested"`
		FramesInferred uint64  `json:"frames_inferred"`
		CaptureFPS     float64 `json:"capture_fps"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, uint64(2), got.FramesIngested)
	require.Equal(t, uint64(1), got.FramesInferred)
	require.Equal(t, 14.5, got.CaptureFPS)
}

func TestStatsHandlerMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(nil)

	rr := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/stats", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestDetectionsHandler(t *testing.T) {
	reader := &fakeReader{detections: []store.Detection{
		{Plate: "ABC123", Location: "entrada_principal"},
	}}
	srv, _ := newTestServer(reader)

	rr := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/detections?hours=6", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 6, reader.gotHours)

	var got []store.Detection
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "ABC123", got[0].Plate)
}

func TestDetectionsHandlerEmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(&fakeReader{})

	rr := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/detections", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

func TestDetectionsHandlerNoStore(t *testing.T) {
	srv, _ := newTestServer(nil)

	rr := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/detections", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestDetectionsHandlerBadHours(t *testing.T) {
	srv, _ := newTestServer(&fakeReader{})

	for _, q := range []string{"hours=abc", "hours=-3", "hours=0"} {
		rr := httptest.NewRecorder()
		srv.ServeMux().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/detections?"+q, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestDetectionsHandlerStoreError(t *testing.T) {
	srv, _ := newTestServer(&fakeReader{err: errors.New("db locked")})

	rr := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/detections", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, agg := newTestServer(nil)
	agg.FrameIngested()

	rr := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	require.Contains(t, body, "plategate_frames_ingested_total 1")
	require.Contains(t, body, "plategate_capture_fps 14.5")
}
