package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

const HeaderEventType = "event_type"

// LifecyclePublisher sends order lifecycle envelopes keyed by order id,
// carrying the caller's trace context in the message headers.
type LifecyclePublisher struct {
	P interface {
		Publish(key, value []byte, headers ...kafka.Header) error
	}
}

func (l LifecyclePublisher) Publish(ctx context.Context, env orders.Envelope) error {
	headers := []kafka.Header{{Key: HeaderEventType, Value: []byte(env.EventType)}}
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier{Headers: &headers})
	return l.P.Publish(orders.PartitionKey(env.CorrelationID), MustMarshal(env), headers...)
}
