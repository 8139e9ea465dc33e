// Package events publishes attempt lifecycle events. Every event goes to an
// in-process GoChannel topic that feeds the websocket hub and, when brokers
// are configured, to a Kafka topic for other services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/config"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
)

const (
	TypeAttemptStarted   = "attempt.started"
	TypeAttemptAutosaved = "attempt.autosaved"
	TypeAttemptCompleted = "attempt.completed"
	TypeAttemptAbandoned = "attempt.abandoned"

	// LocalTopic is the in-process topic the websocket hub subscribes to.
	LocalTopic = "attempts"

	Source = "quiz-service"

	metadataType = "event_type"
)

// AttemptEvent describes one state change of an attempt.
type AttemptEvent struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Source     string               `json:"source"`
	OccurredAt time.Time            `json:"occurred_at"`
	AttemptID  uint                 `json:"attempt_id"`
	QuizID     uint                 `json:"quiz_id"`
	StudentID  string               `json:"student_id"`
	Status     models.AttemptStatus `json:"status"`
	Version    int                  `json:"version"`
	DeadlineAt *time.Time           `json:"deadline_at,omitempty"`
	Score      *float64             `json:"score,omitempty"`
	Percentage *float64             `json:"percentage,omitempty"`
	EndReason  string               `json:"end_reason,omitempty"`
}

// NewAttemptEvent snapshots the attempt into an event of the given type.
func NewAttemptEvent(eventType string, attempt *models.QuizAttempt) AttemptEvent {
	evt := AttemptEvent{
		ID:         watermill.NewUUID(),
		Type:       eventType,
		Source:     Source,
		OccurredAt: time.Now().UTC(),
		AttemptID:  attempt.ID,
		QuizID:     attempt.QuizID,
		StudentID:  attempt.StudentID,
		Status:     attempt.Status,
		Version:    attempt.Version,
		DeadlineAt: attempt.DeadlineAt,
		Score:      attempt.Score,
		Percentage: attempt.Percentage,
	}
	if attempt.EndReason != nil {
		evt.EndReason = *attempt.EndReason
	}
	return evt
}

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, event AttemptEvent) error
}

// Bus fans events out to the local subscribers and the optional broker.
type Bus struct {
	local       *gochannel.GoChannel
	remote      message.Publisher
	remoteTopic string
	logger      *slog.Logger
}

// NewBus builds the bus. The Kafka publisher is only created when brokers are set.
func NewBus(cfg config.KafkaConfig, logger *slog.Logger) (*Bus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	bus := &Bus{
		local: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, wmLogger),
		remoteTopic: cfg.Topic,
		logger:      logger,
	}

	if len(cfg.Brokers) > 0 {
		publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:   cfg.Brokers,
			Marshaler: kafka.DefaultMarshaler{},
		}, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		bus.remote = publisher
		if bus.remoteTopic == "" {
			bus.remoteTopic = "quiz.attempts"
		}
	}

	return bus, nil
}

// Publish encodes the event and sends it to every configured transport.
func (b *Bus) Publish(ctx context.Context, event AttemptEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.local.Publish(LocalTopic, b.newMessage(ctx, event, payload)); err != nil {
		return fmt.Errorf("failed to publish local event: %w", err)
	}

	if b.remote != nil {
		if err := b.remote.Publish(b.remoteTopic, b.newMessage(ctx, event, payload)); err != nil {
			return fmt.Errorf("failed to publish event to kafka: %w", err)
		}
	}

	b.logger.Debug("Attempt event published", "type", event.Type, "attempt_id", event.AttemptID)
	return nil
}

func (b *Bus) newMessage(ctx context.Context, event AttemptEvent, payload []byte) *message.Message {
	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set(metadataType, event.Type)
	msg.SetContext(ctx)
	return msg
}

// Subscribe returns the local event stream. Each message must be acked.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.local.Subscribe(ctx, LocalTopic)
}

func (b *Bus) Close() error {
	var firstErr error
	if b.remote != nil {
		if err := b.remote.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close kafka publisher: %w", err)
		}
	}
	if err := b.local.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close local pubsub: %w", err)
	}
	return firstErr
}

// Decode reads an AttemptEvent back from a message payload.
func Decode(msg *message.Message) (AttemptEvent, error) {
	var evt AttemptEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return evt, fmt.Errorf("failed to decode event: %w", err)
	}
	return evt, nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []AttemptEvent
}

func (r *Recorder) Publish(_ context.Context, event AttemptEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []AttemptEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AttemptEvent(nil), r.events...)
}

// Types lists the published event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
