package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/your-org/classcam/internal/api"
	"github.com/your-org/classcam/internal/api/handlers"
	"github.com/your-org/classcam/internal/api/ws"
	"github.com/your-org/classcam/internal/config"
	"github.com/your-org/classcam/internal/engine"
	"github.com/your-org/classcam/internal/models"
	"github.com/your-org/classcam/internal/observability"
	"github.com/your-org/classcam/internal/queue"
	"github.com/your-org/classcam/internal/storage"
	"github.com/your-org/classcam/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting classcam API", "port", cfg.Server.Port, "backend", cfg.Database.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := vision.SetupRuntime(cfg.Vision.ONNXLibrary); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer vision.DestroyRuntime()

	analyzer, err := vision.NewFaceAnalyzer(cfg.Analyzer())
	if err != nil {
		slog.Error("load face models", "error", err)
		os.Exit(1)
	}
	defer analyzer.Close()

	var hands vision.HandDetector
	if path := cfg.HandModelPath(); path != "" {
		lm, err := vision.NewHandLandmarker(path, float32(cfg.Hands.MinScore), nil)
		if err != nil {
			slog.Error("load hand landmark model", "error", err)
			os.Exit(1)
		}
		defer lm.Close()
		hands = lm
	}

	store, closeStore, err := storage.OpenSnapshotStore(ctx, cfg.Database, cfg.Postgres, cfg.MinIO)
	if err != nil {
		slog.Error("open face database store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	checks := map[string]handlers.Check{}
	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		checks["face_database"] = p.Ping
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	// Without NATS, events go straight from the engine to the hub.
	var notifier engine.Notifier = hub
	var producer *queue.Producer
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		notifier = producer
		checks["nats"] = func(context.Context) error { return producer.Ping() }
	}

	eng := engine.New(engine.Options{
		Detector:       analyzer,
		Hands:          hands,
		Store:          store,
		Notifier:       notifier,
		Matcher:        cfg.Matcher(),
		Tracking:       cfg.Tracker(),
		Enrollment:     cfg.Enroller(),
		Participation:  cfg.Participation(),
		ProvisionalIoU: float32(cfg.Tracking.ProvisionalIoU),
	})
	if err := eng.Load(ctx); err != nil {
		slog.Warn("starting with an empty face database", "error", err)
	}

	if producer != nil {
		frames, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		checks["minio"] = frames.Ping

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create nats consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeFrames(ctx, "api-recognizer", recognizeFrame(eng, frames), cfg.Capture.Workers); err != nil {
			slog.Warn("start frame consumer", "error", err)
		}
		if err := consumer.ConsumeEvents(ctx, "api-events", hub.HandleEvent); err != nil {
			slog.Warn("start event consumer", "error", err)
		}
		go watchQueueDepth(ctx, producer)
	}

	go pruneSessions(ctx, eng, cfg.Server.SessionIdle)

	router := api.NewRouter(api.RouterConfig{
		APIKey: cfg.Server.APIKey,
		Engine: eng,
		Hub:    hub,
		Checks: checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := eng.Save(shutdownCtx); err != nil {
		slog.Error("final face database save", "error", err)
	}

	slog.Info("API server stopped")
}

type frameSource interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// recognizeFrame runs captured frames through the engine, one session per
// camera. Undecodable frames are dropped rather than redelivered.
func recognizeFrame(eng *engine.Engine, frames frameSource) queue.FrameHandler {
	return func(ctx context.Context, task models.FrameTask) error {
		data, err := frames.GetObject(ctx, task.FrameRef)
		if err != nil {
			return fmt.Errorf("fetch frame %s: %w", task.FrameID, err)
		}
		img, err := vision.DecodeImage(data)
		if err != nil {
			slog.Warn("drop frame", "frame", task.FrameID, "camera", task.CameraID, "error", err)
			return nil
		}

		res, err := eng.Recognize(engine.WithFrameRef(ctx, task.FrameRef), img, task.Section, task.CameraID)
		if err != nil {
			if engine.IsKind(err, engine.KindValidation) {
				slog.Warn("drop frame", "frame", task.FrameID, "camera", task.CameraID, "error", err)
				return nil
			}
			return fmt.Errorf("recognize frame %s: %w", task.FrameID, err)
		}
		slog.Debug("frame recognized", "camera", task.CameraID, "faces", len(res.Faces),
			"fresh", res.Stats.RecognizedCount, "cached", res.Stats.CachedCount)
		return nil
	}
}

func pruneSessions(ctx context.Context, eng *engine.Engine, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(maxIdle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eng.PruneIdleSessions(maxIdle)
		}
	}
}

func watchQueueDepth(ctx context.Context, producer *queue.Producer) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := producer.QueueDepth(ctx)
			if err != nil {
				slog.Debug("queue depth", "error", err)
				continue
			}
			observability.QueueDepth.Set(float64(depth))
		}
	}
}
