// Package api serves the status endpoints: live stats, recent
// detections, and Prometheus metrics.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vigia-labs/plategate/internal/stats"
	"github.com/vigia-labs/plategate/internal/store"
)

// DetectionReader is the slice of the store the API reads.
type DetectionReader interface {
	RecentDetections(hours, limit int) ([]store.Detection, error)
}

// RateSource exposes the capture frame rate.
type RateSource interface {
	Rate() float64
}

// Server serves the HTTP status API. db and source may be nil when the
// corresponding capability is not wired; their endpoints degrade.
type Server struct {
	stats    *stats.Aggregator
	db       DetectionReader
	source   RateSource
	registry *prometheus.Registry
}

// NewServer builds a Server over the aggregator, plus optional store and
// capture source.
func NewServer(agg *stats.Aggregator, db DetectionReader, source RateSource) *Server {
	s := &Server{
		stats:    agg,
		db:       db,
		source:   source,
		registry: prometheus.NewRegistry(),
	}
	s.registerMetrics()
	return s
}

func (s *Server) registerMetrics() {
	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "plategate_frames_ingested_total",
			Help: "Total frames pulled from the capture source",
		},
		func() float64 { return float64(s.stats.Snapshot().FramesIngested) },
	))
	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "plategate_frames_inferred_total",
			Help: "Total frames forwarded to inference",
		},
		func() float64 { return float64(s.stats.Snapshot().FramesInferred) },
	))
	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "plategate_detections_accepted_total",
			Help: "Total detections accepted past the cooldown",
		},
		func() float64 { return float64(s.stats.Snapshot().DetectionsAccepted) },
	))
	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "plategate_ingest_fps",
			Help: "Average ingestion rate since start",
		},
		func() float64 { return s.stats.Snapshot().IngestRate },
	))
	s.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "plategate_capture_fps",
			Help: "Capture device frame rate over the last second",
		},
		func() float64 {
			if s.source == nil {
				return 0
			}
			return s.source.Rate()
		},
	))
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("plategate LPR server\n"))
}

// ServeMux returns the API routing table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.statsHandler)
	mux.HandleFunc("/api/detections", s.detectionsHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.stats.Snapshot()
	payload := struct {
		stats.Snapshot
		CaptureFPS float64 `json:"capture_fps"`
	}{Snapshot: snap}
	if s.source != nil {
		payload.CaptureFPS = s.source.Rate()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode stats: %v", err), http.StatusInternalServerError)
	}
}

func (s *Server) detectionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "Detection store not configured", http.StatusServiceUnavailable)
		return
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid hours parameter", http.StatusBadRequest)
			return
		}
		hours = n
	}

	detections, err := s.db.RecentDetections(hours, 100)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve detections: %v", err), http.StatusInternalServerError)
		return
	}
	if detections == nil {
		detections = []store.Detection{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(detections); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode detections: %v", err), http.StatusInternalServerError)
	}
}
