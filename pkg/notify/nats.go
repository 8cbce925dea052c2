package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/Argus/pkg/errors"
)

// NATSSink publishes events to a JetStream subject, one subject per
// session under a configurable prefix (e.g. "argus.session.<id>").
type NATSSink struct {
	js                nats.JetStreamContext
	stream            string
	subjectPrefix     string
	publishMaxRetries int
	logger            *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewNATSSink creates a JetStream-backed sink. stream is the JetStream
// stream holding session events; subjectPrefix is prepended to the
// session id to form the publish subject.
func NewNATSSink(js nats.JetStreamContext, stream, subjectPrefix string, publishMaxRetries int, logger *zap.Logger) (*NATSSink, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context cannot be nil")
	}
	if stream == "" {
		return nil, fmt.Errorf("stream name cannot be empty")
	}
	if subjectPrefix == "" {
		return nil, fmt.Errorf("subject prefix cannot be empty")
	}
	if publishMaxRetries <= 0 {
		publishMaxRetries = 3
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &NATSSink{
		js:                js,
		stream:            stream,
		subjectPrefix:     subjectPrefix,
		publishMaxRetries: publishMaxRetries,
		logger:            logger,
	}, nil
}

// Publish sends one event to the session's subject, retrying a bounded
// number of times. Callers treat failures as non-fatal.
func (s *NATSSink) Publish(ctx context.Context, event Event) error {
	if event.SessionID == "" {
		return fmt.Errorf("event session id cannot be empty")
	}

	if err := s.ensureStream(); err != nil {
		s.logger.Error("Failed to ensure notification stream exists",
			zap.String("stream", s.stream),
			zap.Error(err))
		return fmt.Errorf("%w: %v", sdkerrors.ErrPublishFailed, err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", s.subjectPrefix, event.SessionID)

	var publishErr error
	for attempt := 1; attempt <= s.publishMaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish cancelled: %w", ctx.Err())
		default:
		}

		_, publishErr = s.js.Publish(subject, data)
		if publishErr == nil {
			s.logger.Debug("Published notification",
				zap.String("subject", subject),
				zap.String("type", string(event.Type)))
			return nil
		}

		if attempt < s.publishMaxRetries {
			s.logger.Warn("Failed to publish notification, retrying",
				zap.String("subject", subject),
				zap.String("type", string(event.Type)),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", s.publishMaxRetries),
				zap.Error(publishErr))
			time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", sdkerrors.ErrPublishFailed, s.publishMaxRetries, publishErr)
}

// ensureStream creates the notification stream on first use if it does
// not already exist.
func (s *NATSSink) ensureStream() error {
	s.ensureOnce.Do(func() {
		_, err := s.js.StreamInfo(s.stream)
		if err == nil {
			return
		}
		if err != nats.ErrStreamNotFound {
			s.ensureErr = err
			return
		}

		s.logger.Info("Creating notification stream", zap.String("stream", s.stream))
		_, s.ensureErr = s.js.AddStream(&nats.StreamConfig{
			Name:     s.stream,
			Subjects: []string{fmt.Sprintf("%s.*", s.subjectPrefix)},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
			MaxMsgs:  100000,
			Replicas: 1,
		})
	})
	return s.ensureErr
}
