package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/classcam/internal/models"
)

// FrameHandler processes one captured frame.
type FrameHandler func(ctx context.Context, task models.FrameTask) error

// EventHandler processes one recognition event.
type EventHandler func(ctx context.Context, ev models.RecognitionEvent) error

var (
	// errPoison marks messages that can never be processed.
	errPoison = errors.New("undecodable message")
	// errStaleFrame marks a frame older than one already processed for its camera.
	errStaleFrame = errors.New("stale frame")
)

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

// ConsumeFrames starts a durable consumer on the FRAMES stream. Frames of one
// camera are handled one at a time in stream order; up to workerCount cameras
// are handled concurrently. Frames are delivered once: a failed or
// out-of-order frame is dropped, never redelivered.
func (c *Consumer) ConsumeFrames(ctx context.Context, consumerName string, handler FrameHandler, workerCount int) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	cons, err := c.durable(ctx, FramesStreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    1,
		FilterSubject: FramesSubjectBase + ".>",
	})
	if err != nil {
		return err
	}

	msgCh := make(chan jetstream.Msg, laneBuffer)
	go c.fetchLoop(ctx, cons, laneBuffer, msgCh)

	order := newFrameOrder()
	cameras := newLanes(workerCount, func(msg jetstream.Msg) {
		settleFrame(msg, processFrame(ctx, msg, order, handler))
	})
	go func() {
		for msg := range msgCh {
			cameras.submit(msg.Subject(), msg)
		}
		cameras.close()
	}()

	slog.Info("frame consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeEvents starts a consumer on the EVENTS stream that only sees new events.
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler EventHandler) error {
	cons, err := c.durable(ctx, EventsStreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return err
	}

	msgCh := make(chan jetstream.Msg, 20)
	go c.fetchLoop(ctx, cons, 10, msgCh)
	go func() {
		for msg := range msgCh {
			settle(msg, processEvent(ctx, msg, handler), "consumer", consumerName)
		}
	}()

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) durable(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	s, err := c.js.Stream(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", stream, err)
	}
	cons, err := s.CreateOrUpdateConsumer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", cfg.Name, err)
	}
	return cons, nil
}

// fetchLoop pulls batches into msgCh until ctx is done, then closes msgCh.
func (c *Consumer) fetchLoop(ctx context.Context, cons jetstream.Consumer, batchSize int, msgCh chan<- jetstream.Msg) {
	defer close(msgCh)
	for {
		if ctx.Err() != nil {
			return
		}

		batch, err := cons.Fetch(batchSize, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("fetch messages", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for msg := range batch.Messages() {
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func processFrame(ctx context.Context, msg jetstream.Msg, order *frameOrder, handler FrameHandler) error {
	var task models.FrameTask
	if err := json.Unmarshal(msg.Data(), &task); err != nil {
		return fmt.Errorf("%w: frame task: %v", errPoison, err)
	}
	if !order.admit(task.CameraID, task.Timestamp) {
		return fmt.Errorf("%w: %s from %s at %s", errStaleFrame, task.FrameID, task.CameraID, task.Timestamp.Format(time.RFC3339Nano))
	}
	return handler(ctx, task)
}

func processEvent(ctx context.Context, msg jetstream.Msg, handler EventHandler) error {
	var ev models.RecognitionEvent
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		return fmt.Errorf("%w: recognition event: %v", errPoison, err)
	}
	return handler(ctx, ev)
}

// settle acks, naks or terminates msg depending on the handler outcome.
func settle(msg jetstream.Msg, err error, attrs ...any) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, errPoison):
		slog.Error("drop message", append(attrs, "subject", msg.Subject(), "error", err)...)
		_ = msg.Term()
	default:
		slog.Error("process message", append(attrs, "subject", msg.Subject(), "error", err)...)
		_ = msg.Nak()
	}
}

// settleFrame acks handled and stale frames and terminates failed ones.
func settleFrame(msg jetstream.Msg, err error) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, errStaleFrame):
		slog.Debug("skip frame", "subject", msg.Subject(), "error", err)
		_ = msg.Ack()
	default:
		slog.Error("drop frame", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
	}
}

func (c *Consumer) Close() {
	c.nc.Close()
}
