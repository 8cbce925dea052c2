package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Argus/pkg/execution"
	"github.com/wehubfusion/Argus/pkg/search"
)

// ArrivalConsumer pulls search-arrival callbacks from a JetStream
// stream in batches and hands them to worker goroutines that resume
// the matching deferred parameters. Arrivals whose request id is
// unknown (already evicted) are acked and dropped.
type ArrivalConsumer struct {
	js         nats.JetStreamContext
	exec       *execution.Service
	stream     string
	consumer   string
	batchSize  int
	numWorkers int
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewArrivalConsumer creates a consumer bound to the given stream and
// durable consumer name. The stream is created on first use when it
// does not exist yet.
func NewArrivalConsumer(js nats.JetStreamContext, exec *execution.Service, stream, consumer string, batchSize, numWorkers int, logger *zap.Logger) (*ArrivalConsumer, error) {
	if js == nil {
		return nil, errors.New("JetStream context cannot be nil")
	}
	if exec == nil {
		return nil, errors.New("execution service cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream name cannot be empty")
	}
	if consumer == "" {
		return nil, errors.New("consumer name cannot be empty")
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	if err := ensureStream(js, stream, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure stream '%s' exists: %w", stream, err)
	}

	return &ArrivalConsumer{
		js:         js,
		exec:       exec,
		stream:     stream,
		consumer:   consumer,
		batchSize:  batchSize,
		numWorkers: numWorkers,
		logger:     logger,
		tracer:     otel.Tracer("argus/engine"),
	}, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func ensureStream(js nats.JetStreamContext, streamName string, logger *zap.Logger) error {
	info, err := js.StreamInfo(streamName)
	if err != nil {
		if err == nats.ErrStreamNotFound {
			logger.Info("Creating JetStream stream", zap.String("stream", streamName))
			cfg := &nats.StreamConfig{
				Name:     streamName,
				Subjects: []string{fmt.Sprintf("%s.*", streamName)},
				Storage:  nats.FileStorage,
				MaxAge:   24 * time.Hour,
				MaxMsgs:  100000,
				Replicas: 1,
			}
			if _, err := js.AddStream(cfg); err != nil {
				return fmt.Errorf("failed to create stream '%s': %w", streamName, err)
			}
			return nil
		}
		return fmt.Errorf("failed to get stream info for '%s': %w", streamName, err)
	}

	logger.Info("JetStream stream already exists",
		zap.String("stream", streamName),
		zap.Uint64("messages", info.State.Msgs),
		zap.Int("consumers", info.State.Consumers))
	return nil
}

// Run pulls arrivals until the context is cancelled. The method blocks
// until the puller and all workers have drained.
func (c *ArrivalConsumer) Run(ctx context.Context) error {
	sub, err := c.js.PullSubscribe("", c.consumer, nats.BindStream(c.stream))
	if err != nil {
		return fmt.Errorf("failed to subscribe to stream '%s': %w", c.stream, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("Failed to unsubscribe arrival consumer", zap.Error(err))
		}
	}()

	msgChan := make(chan *nats.Msg, c.batchSize)

	var wg sync.WaitGroup
	for i := 0; i < c.numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.worker(ctx, workerID, msgChan)
		}(i)
	}

	go func() {
		defer close(msgChan)

		backoffDelay := 100 * time.Millisecond
		maxBackoff := 5 * time.Second

		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Shutting down arrival consumer...")
				return
			default:
				msgs, err := sub.Fetch(c.batchSize, nats.Context(ctx))
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					if errors.Is(err, nats.ErrTimeout) {
						continue
					}
					c.logger.Error("Error pulling arrivals", zap.Error(err))
					time.Sleep(backoffDelay)
					if backoffDelay < maxBackoff {
						backoffDelay *= 2
					}
					continue
				}
				backoffDelay = 100 * time.Millisecond

				for _, msg := range msgs {
					select {
					case msgChan <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		c.logger.Info("Arrival consumer completed")
		return nil
	case <-ctx.Done():
		c.logger.Info("Arrival consumer stopped due to context cancellation")
		return ctx.Err()
	}
}

func (c *ArrivalConsumer) worker(ctx context.Context, workerID int, msgChan <-chan *nats.Msg) {
	c.logger.Info("Arrival worker started", zap.Int("workerID", workerID))
	defer c.logger.Info("Arrival worker stopped", zap.Int("workerID", workerID))

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			c.handle(ctx, workerID, msg)
		case <-ctx.Done():
			return
		}
	}
}

// handle decodes one arrival callback and resumes the deferred
// parameter it belongs to. Undecodable messages are terminated rather
// than redelivered forever.
func (c *ArrivalConsumer) handle(ctx context.Context, workerID int, msg *nats.Msg) {
	ctx, span := c.tracer.Start(ctx, "engine.handleArrival",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("stream", c.stream),
			attribute.String("consumer", c.consumer),
		))
	defer span.End()

	var arrival search.Arrival
	if err := json.Unmarshal(msg.Data, &arrival); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "undecodable arrival")
		c.logger.Error("Dropping undecodable arrival",
			zap.Int("workerID", workerID),
			zap.Error(err))
		if termErr := msg.Term(); termErr != nil {
			c.logger.Warn("Failed to terminate bad arrival", zap.Error(termErr))
		}
		return
	}
	span.SetAttributes(attribute.String("request.id", arrival.RequestID))

	start := time.Now()
	if err := c.exec.OnArrival(ctx, arrival); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Error processing arrival",
			zap.Int("workerID", workerID),
			zap.String("request_id", arrival.RequestID),
			zap.Duration("processingTime", time.Since(start)),
			zap.Error(err))
		if nakErr := msg.Nak(); nakErr != nil {
			c.logger.Error("Error naking arrival", zap.Error(nakErr))
		}
		return
	}

	span.SetStatus(codes.Ok, "Arrival processed")
	c.logger.Debug("Arrival processed",
		zap.Int("workerID", workerID),
		zap.String("request_id", arrival.RequestID),
		zap.Duration("processingTime", time.Since(start)))
	if ackErr := msg.Ack(); ackErr != nil {
		c.logger.Error("Error acking arrival", zap.Error(ackErr))
	}
}
