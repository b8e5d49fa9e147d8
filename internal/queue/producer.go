package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/classcam/internal/models"
)

// Streams and their subject roots. Frame subjects end with the camera id,
// event subjects with the recognition session id.
const (
	FramesStreamName  = "FRAMES"
	FramesSubjectBase = "frames"
	EventsStreamName  = "EVENTS"
	EventsSubjectBase = "events"
)

const (
	ensureAttempts = 30
	ensureInterval = time.Second
)

// Producer publishes frame tasks and recognition events to JetStream.
type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// streamConfigs describes the two streams. Frames are a work queue consumed
// once; events are kept only while a consumer is interested.
func streamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        FramesStreamName,
			Description: "Captured camera frames awaiting recognition",
			Subjects:    []string{FramesSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			MaxAge:      5 * time.Minute,
			MaxMsgs:     100_000,
			MaxBytes:    1 << 30,
			Duplicates:  30 * time.Second,
		},
		{
			Name:        EventsStreamName,
			Description: "Recognition events per session",
			Subjects:    []string{EventsSubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			Storage:     jetstream.FileStorage,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1_000_000,
		},
	}
}

// EnsureStreams creates or updates both streams, retrying while the server
// comes up.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	for _, cfg := range streamConfigs() {
		if err := p.ensureStream(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (p *Producer) ensureStream(ctx context.Context, cfg jetstream.StreamConfig) error {
	var lastErr error
	for attempt := 1; attempt <= ensureAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, lastErr = p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if lastErr == nil {
			slog.Info("nats stream ready", "stream", cfg.Name)
			return nil
		}
		slog.Warn("nats stream not ready", "stream", cfg.Name, "attempt", attempt, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ensureInterval):
		}
	}
	return fmt.Errorf("create stream %s after %d attempts: %w", cfg.Name, ensureAttempts, lastErr)
}

func frameSubject(cameraID string) string {
	return FramesSubjectBase + "." + SubjectToken(cameraID)
}

func eventSubject(sessionID string) string {
	return EventsSubjectBase + "." + SubjectToken(sessionID)
}

func (p *Producer) publishJSON(ctx context.Context, subject string, v any, opts ...jetstream.PublishOpt) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload, opts...); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// PublishFrame announces a stored frame. The frame id doubles as the
// JetStream message id, so a republished capture is dropped as a duplicate.
func (p *Producer) PublishFrame(ctx context.Context, task models.FrameTask) error {
	return p.publishJSON(ctx, frameSubject(task.CameraID), task, jetstream.WithMsgID(task.FrameID.String()))
}

func (p *Producer) PublishEvent(ctx context.Context, ev models.RecognitionEvent) error {
	return p.publishJSON(ctx, eventSubject(ev.SessionID), ev, jetstream.WithMsgID(ev.ID.String()))
}

// NotifyRecognition publishes a frame's events. Every event is attempted;
// the failures are joined.
func (p *Producer) NotifyRecognition(ctx context.Context, events []models.RecognitionEvent) error {
	var errs []error
	for _, ev := range events {
		if err := p.PublishEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SubjectToken makes s safe to use as one NATS subject token.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// QueueDepth returns the number of frames waiting for recognition.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, FramesStreamName)
	if err != nil {
		return 0, fmt.Errorf("lookup stream %s: %w", FramesStreamName, err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("stream info %s: %w", FramesStreamName, err)
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if status := p.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats %s", status)
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
