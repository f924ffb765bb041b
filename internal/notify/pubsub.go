package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
)

// PubSubSender publishes jobs to a topic for an external deliverer.
type PubSubSender struct {
	publisher *pubsub.Publisher
}

// NewPubSubSender wraps a topic publisher.
func NewPubSubSender(publisher *pubsub.Publisher) *PubSubSender {
	return &PubSubSender{publisher: publisher}
}

// Send marshals the job to JSON and waits for the publish to be acknowledged.
func (s *PubSubSender) Send(ctx context.Context, job Job) error {
	if s.publisher == nil {
		return Permanent(errors.New("pubsub publisher is not configured"))
	}
	data, err := json.Marshal(job)
	if err != nil {
		return Permanent(fmt.Errorf("marshal job: %w", err))
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_id": job.ID},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	result := s.publisher.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
