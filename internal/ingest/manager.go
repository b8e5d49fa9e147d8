package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/classcam/internal/config"
	"github.com/your-org/classcam/internal/models"
	"github.com/your-org/classcam/internal/observability"
)

// FramesPrefix is the object key prefix for captured frames.
const FramesPrefix = "frames/"

// FramePublisher announces captured frames to the recognition side.
type FramePublisher interface {
	PublishFrame(ctx context.Context, task models.FrameTask) error
}

// FrameStore holds captured frame images.
type FrameStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	PruneObjects(ctx context.Context, prefix string, cutoff time.Time) (int, error)
}

type extractor interface {
	Run(ctx context.Context, url, kind string, fps, width int, callback FrameCallback) error
	Stop()
}

type activeCamera struct {
	cancel    context.CancelFunc
	extractor extractor
	done      chan struct{}
}

// Manager runs one capture loop per configured camera.
type Manager struct {
	publisher FramePublisher
	frames    FrameStore
	width     int
	retention time.Duration

	// MaxRetries bounds consecutive failed extractions per camera.
	MaxRetries int

	newExtractor func() extractor
	resolve      func(ctx context.Context, url string) (string, error)
	backoff      func(attempt int) time.Duration

	mu      sync.Mutex
	cameras map[string]*activeCamera
}

func NewManager(publisher FramePublisher, frames FrameStore, cfg config.CaptureConfig) *Manager {
	return &Manager{
		publisher:    publisher,
		frames:       frames,
		width:        cfg.FrameWidth,
		retention:    cfg.FrameRetention,
		MaxRetries:   3,
		newExtractor: func() extractor { return &FFmpegExtractor{} },
		resolve:      ResolveYouTubeURL,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
		cameras: make(map[string]*activeCamera),
	}
}

// FrameKey is the object key of one captured frame.
func FrameKey(cameraID string, frameID uuid.UUID) string {
	return fmt.Sprintf("%s%s/%s.jpg", FramesPrefix, cameraID, frameID)
}

// Start launches capture for cam. It returns immediately; the loop stops when
// ctx is cancelled, Stop is called or retries are exhausted.
func (m *Manager) Start(ctx context.Context, cam config.CameraConfig) error {
	if cam.ID == "" || cam.URL == "" {
		return fmt.Errorf("camera needs id and url")
	}
	fps := cam.FPS
	if fps <= 0 {
		fps = 5
	}

	m.mu.Lock()
	if _, exists := m.cameras[cam.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("camera %s already running", cam.ID)
	}
	camCtx, cancel := context.WithCancel(ctx)
	ac := &activeCamera{cancel: cancel, extractor: m.newExtractor(), done: make(chan struct{})}
	m.cameras[cam.ID] = ac
	m.mu.Unlock()

	observability.CaptureActiveCameras.Inc()
	slog.Info("starting camera capture", "camera", cam.ID, "type", cam.Type, "fps", fps, "section", cam.Section)

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.cameras, cam.ID)
			m.mu.Unlock()
			observability.CaptureActiveCameras.Dec()
			close(ac.done)
			slog.Info("camera capture stopped", "camera", cam.ID)
		}()
		m.run(camCtx, cam, fps, ac)
	}()
	return nil
}

func (m *Manager) run(ctx context.Context, cam config.CameraConfig, fps int, ac *activeCamera) {
	onFrame := func(frame []byte) error {
		return m.publish(ctx, cam, frame)
	}

	for attempt := 0; attempt <= m.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := m.backoff(attempt)
			slog.Warn("retrying camera capture", "camera", cam.ID, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			m.mu.Lock()
			ac.extractor = m.newExtractor()
			m.mu.Unlock()
		}

		url := cam.URL
		if cam.Type == "youtube" {
			resolved, err := m.resolve(ctx, cam.URL)
			if err != nil {
				slog.Warn("resolve youtube url", "camera", cam.ID, "error", err)
				continue
			}
			url = resolved
		}

		err := ac.extractor.Run(ctx, url, cam.Type, fps, m.width, onFrame)
		if err == nil || ctx.Err() != nil {
			return
		}
		slog.Error("camera capture failed", "camera", cam.ID, "attempt", attempt, "error", err)
	}
	slog.Error("camera capture gave up", "camera", cam.ID, "retries", m.MaxRetries)
}

func (m *Manager) publish(ctx context.Context, cam config.CameraConfig, frame []byte) error {
	frameID := uuid.New()
	key := FrameKey(cam.ID, frameID)
	if err := m.frames.PutObject(ctx, key, frame, "image/jpeg"); err != nil {
		return fmt.Errorf("upload frame: %w", err)
	}

	task := models.FrameTask{
		CameraID:  cam.ID,
		FrameID:   frameID,
		Timestamp: time.Now().UTC(),
		FrameRef:  key,
		Width:     m.width,
		Section:   cam.Section,
	}
	if err := m.publisher.PublishFrame(ctx, task); err != nil {
		return fmt.Errorf("publish frame task: %w", err)
	}

	observability.CaptureFrames.WithLabelValues(cam.ID).Inc()
	return nil
}

// Stop ends capture for one camera and waits for its loop to exit.
func (m *Manager) Stop(cameraID string) {
	m.mu.Lock()
	ac, ok := m.cameras[cameraID]
	var ext extractor
	if ok {
		ext = ac.extractor
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	ac.cancel()
	ext.Stop()
	<-ac.done
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.cameras))
	for id := range m.cameras {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cameras)
}

// RunRetention deletes frames older than the configured retention every
// interval until ctx is done.
func (m *Manager) RunRetention(ctx context.Context, interval time.Duration) {
	if m.retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.frames.PruneObjects(ctx, FramesPrefix, time.Now().Add(-m.retention))
			if err != nil {
				slog.Warn("prune frames", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("pruned frames", "count", n)
			}
		}
	}
}
