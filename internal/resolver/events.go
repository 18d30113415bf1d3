package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const resolvedEventType = "media.resolved"

// ResolvedEvent is emitted after a fresh resolution has been committed.
type ResolvedEvent struct {
	ID          string    `json:"id"`
	Identifier  string    `json:"identifier"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

func newResolvedEvent(identifier, downloadURL string, expiresAt, resolvedAt time.Time) ResolvedEvent {
	return ResolvedEvent{
		ID:          uuid.NewString(),
		Identifier:  identifier,
		DownloadURL: downloadURL,
		ExpiresAt:   expiresAt.UTC(),
		ResolvedAt:  resolvedAt.UTC(),
	}
}

// Publisher delivers resolved events. Delivery is best effort.
type Publisher interface {
	PublishResolved(ctx context.Context, event ResolvedEvent) error
}

// JSONProducer is satisfied by *kafka.Producer.
type JSONProducer interface {
	PublishJSON(ctx context.Context, key string, value any, headers map[string]string) error
}

// KafkaPublisher publishes events keyed by identifier.
type KafkaPublisher struct {
	producer JSONProducer
}

func NewKafkaPublisher(producer JSONProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) PublishResolved(ctx context.Context, event ResolvedEvent) error {
	headers := map[string]string{
		"event_id":   event.ID,
		"event_type": resolvedEventType,
		"identifier": event.Identifier,
	}
	return p.producer.PublishJSON(ctx, event.Identifier, event, headers)
}

type noopPublisher struct{}

func (noopPublisher) PublishResolved(context.Context, ResolvedEvent) error { return nil }
