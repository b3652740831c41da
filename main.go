package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vigia-labs/plategate/internal/api"
	"github.com/vigia-labs/plategate/internal/capture"
	"github.com/vigia-labs/plategate/internal/config"
	"github.com/vigia-labs/plategate/internal/detect"
	"github.com/vigia-labs/plategate/internal/monitoring"
	"github.com/vigia-labs/plategate/internal/notify"
	"github.com/vigia-labs/plategate/internal/ocr"
	"github.com/vigia-labs/plategate/internal/pipeline"
	"github.com/vigia-labs/plategate/internal/stats"
	"github.com/vigia-labs/plategate/internal/store"
	"github.com/vigia-labs/plategate/internal/timeutil"
	"github.com/vigia-labs/plategate/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file")
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	source     = flag.String("source", "", "Camera source (overrides config)")
	aiEvery    = flag.Int("ai-every", 0, "Run inference every Nth frame (overrides config)")
	cooldown   = flag.Duration("cooldown", 0, "Plate debounce window (overrides config)")
	confidence = flag.Float64("confidence", 0, "Detector confidence threshold (overrides config)")
)

const statsInterval = 5 * time.Second

func main() {
	flag.Parse()
	log.Printf("plategate %s", version.String())

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	sourceURL := cfg.Camera.SourceURL
	if *source != "" {
		sourceURL = *source
	}
	if sourceURL == "" {
		sourceURL = "0"
	}

	pipeCfg := pipeline.Config{
		AIEvery:        cfg.GetAIProcessEvery(),
		CooldownWindow: cfg.GetDetectionCooldown(),
		QueueSize:      cfg.GetQueueSize(),
		Location:       cfg.GetLocation(),
	}
	if *aiEvery > 0 {
		pipeCfg.AIEvery = *aiEvery
	}
	if *cooldown > 0 {
		pipeCfg.CooldownWindow = *cooldown
	}
	detectorConfidence := cfg.GetConfidenceThreshold()
	if *confidence > 0 {
		detectorConfidence = *confidence
	}

	clock := timeutil.RealClock{}
	agg := stats.New(clock)

	// Capabilities are best-effort: a missing model, database, or broker
	// degrades its stage rather than refusing to start.
	var caps pipeline.Capabilities

	if cfg.Processing.ModelPath != "" {
		detector, err := detect.NewYOLO(detect.Config{
			ModelPath:           cfg.Processing.ModelPath,
			ConfidenceThreshold: detectorConfidence,
		})
		if err != nil {
			log.Printf("detector unavailable: %v", err)
		} else {
			defer detector.Close()
			caps.Detector = detector
		}
	} else {
		log.Print("no model_path configured; detection disabled")
	}

	recognizer, err := ocr.New(ocr.Config{
		Language:            cfg.GetOCRLanguage(),
		ConfidenceThreshold: cfg.GetPlateConfidenceMin(),
	})
	if err != nil {
		log.Printf("recognizer unavailable: %v", err)
	} else {
		defer recognizer.Close()
		caps.Recognizer = recognizer
	}

	var detectionReader api.DetectionReader
	if cfg.Database.Path != "" {
		db, err := store.Open(cfg.Database.Path)
		if err != nil {
			log.Printf("store unavailable: %v", err)
		} else {
			defer db.Close()
			caps.Store = db
			caps.Authorizer = db
			detectionReader = db
		}
	}

	if cfg.MQTT.Broker != "" {
		publisher, err := notify.New(notify.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.GetClientID(),
			Topic:    cfg.GetTopic(),
		})
		if err != nil {
			log.Printf("notifier unavailable: %v", err)
		} else {
			defer publisher.Close()
			caps.Notifier = publisher
		}
	}

	dev, err := capture.OpenDevice(sourceURL)
	if err != nil {
		log.Fatalf("failed to open camera: %v", err)
	}
	src := capture.New(dev, cfg.GetBufferSize(), clock)
	if err := src.Start(); err != nil {
		log.Fatalf("failed to start capture: %v", err)
	}
	defer src.Stop()

	pipe := pipeline.New(src, caps, pipeCfg, clock, agg)
	if err := pipe.Start(); err != nil {
		log.Fatalf("failed to start pipeline: %v", err)
	}
	defer pipe.Stop()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Periodic human-readable stats.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s := agg.Snapshot()
				monitoring.Logf("stats: ingested=%d inferred=%d accepted=%d ingest_fps=%.1f capture_fps=%.1f",
					s.FramesIngested, s.FramesInferred, s.DetectionsAccepted,
					s.IngestRate, src.Rate())
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.NewServer(agg, detectionReader, src).ServeMux(),
		}

		go func() {
			log.Printf("HTTP server listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	<-ctx.Done()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
