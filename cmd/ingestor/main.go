package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/classcam/internal/config"
	"github.com/your-org/classcam/internal/ingest"
	"github.com/your-org/classcam/internal/observability"
	"github.com/your-org/classcam/internal/queue"
	"github.com/your-org/classcam/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	metricsAddr := flag.String("metrics-addr", ":8081", "metrics and health listen address")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting classcam ingestor", "cameras", len(cfg.Capture.Cameras))

	if cfg.NATS.URL == "" {
		slog.Error("ingestor needs nats.url")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	manager := ingest.NewManager(producer, minioStore, cfg.Capture)
	for _, cam := range cfg.Capture.Cameras {
		if err := manager.Start(ctx, cam); err != nil {
			slog.Error("start camera", "camera", cam.ID, "error", err)
		}
	}

	if cfg.Capture.FrameRetention > 0 {
		slog.Info("frame cleanup enabled", "retention", cfg.Capture.FrameRetention)
		go manager.RunRetention(ctx, time.Minute)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"status":"ok","cameras":%d}`, manager.ActiveCount())
		})
		slog.Info("ingestor metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down ingestor...")
	cancel()
	manager.StopAll()
	slog.Info("ingestor stopped")
}
